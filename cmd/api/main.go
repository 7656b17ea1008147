package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jun/vaultgw/internal/app"
	"github.com/jun/vaultgw/internal/config"
	"github.com/jun/vaultgw/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("load config", zap.Error(err))
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		logging.L().Fatal("init logging", zap.Error(err))
	}
	defer logging.Sync()

	application, err := app.NewApp(context.Background(), cfg)
	if err != nil {
		logging.L().Fatal("init app", zap.Error(err))
	}
	lambda.Start(application.HandleFunctionURL)
}
