package app

import (
	"context"
	"database/sql"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/adapter/googledrive"
	"github.com/jun/vaultgw/internal/adapter/memory"
	"github.com/jun/vaultgw/internal/auth"
	"github.com/jun/vaultgw/internal/catalog"
	"github.com/jun/vaultgw/internal/config"
	"github.com/jun/vaultgw/internal/credstore"
	"github.com/jun/vaultgw/internal/crypto"
	"github.com/jun/vaultgw/internal/export"
	"github.com/jun/vaultgw/internal/folder"
	"github.com/jun/vaultgw/internal/gateway"
	"github.com/jun/vaultgw/internal/handler"
	"github.com/jun/vaultgw/internal/lock"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/secret"
)

const devStateSecret = "dev-state-secret"

// App holds the dependencies for the Lambda function and the local server.
type App struct {
	authHandler      *handler.AuthHandler
	fileHandler      *handler.FileHandler
	exportHandler    *handler.ExportHandler
	frontendURL      string
	apiGatewaySecret string
	devMode          bool
	logger           *zap.Logger
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.L()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	// ---------- Secret Resolver ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		logger.Info("using env secret resolver", zap.Bool("dev_mode", true))
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}

	googleClientSecret, err := resolver.GetSecret(ctx, cfg.GoogleClientSecretParam)
	if err != nil {
		logger.Warn("failed to resolve google client secret", zap.Error(err))
	}
	stateSecret, fellBack := secret.MustGet(ctx, resolver, cfg.StateSecretParam, devStateSecret)
	if fellBack {
		if !cfg.DevMode {
			return nil, fmt.Errorf("state secret %s is not available", cfg.StateSecretParam)
		}
		logger.Warn("using built-in state secret")
	}
	apiGatewaySecret, err := resolver.GetSecret(ctx, cfg.APIGatewaySecretParam)
	if err != nil {
		logger.Warn("failed to resolve api gateway secret", zap.Error(err))
	}

	// ---------- Credential Store ----------
	var enc crypto.Encryptor
	if cfg.DevMode {
		enc = crypto.NewPlainEncryptor()
	} else {
		enc = crypto.NewKMSEncryptor(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		if db, err = catalog.Open(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	var backend credstore.Backend
	switch cfg.CredentialBackend {
	case config.BackendPostgres:
		pg := credstore.NewPostgresBackend(db, cfg.CredentialsTable)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		backend = pg
	case config.BackendMemory:
		backend = credstore.NewMemoryBackend()
	default:
		backend = credstore.NewDynamoBackend(dynamoClient, cfg.CredentialsTable)
	}
	store := credstore.NewAdapter(backend, enc, logger)
	logger.Info("credential store ready", zap.String("backend", cfg.CredentialBackend))

	// ---------- OAuth ----------
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: googleClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scopes: []string{
			"https://www.googleapis.com/auth/drive",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
	authService, err := auth.NewAuthService(oauthConfig, store, []byte(stateSecret), logger)
	if err != nil {
		return nil, err
	}

	// ---------- Storage Provider ----------
	var provider adapter.StoreProvider
	if cfg.DevMode {
		provider = memory.NewProvider(memory.NewStore())
		logger.Info("using in-memory store", zap.Bool("dev_mode", true))
	} else {
		provider = googledrive.NewProvider(auth.NewFactory(oauthConfig, store, logger), logger)
	}

	var locker lock.Locker
	if cfg.FolderLockTable != "" {
		locker = lock.NewDynamoLocker(dynamoClient, cfg.FolderLockTable)
	}

	var source catalog.Source = catalog.StaticSource{}
	if db != nil {
		source = catalog.NewPostgresSource(db)
	}

	gw := gateway.New(gateway.Options{
		Auth:         authService,
		Provider:     provider,
		Resolver:     folder.NewResolver(locker, logger),
		Exporter:     export.NewExporter(export.Config{PipelineDepth: cfg.ExportPipelineDepth}, logger),
		Catalog:      source,
		RootFolderID: cfg.VaultRootFolderID,
		Logger:       logger,
	})
	return newApp(gw, cfg, apiGatewaySecret, logger), nil
}

func newApp(v handler.Vault, cfg *config.Config, apiGatewaySecret string, logger *zap.Logger) *App {
	return &App{
		authHandler:      handler.NewAuthHandler(v, cfg.FrontendURL, logger),
		fileHandler:      handler.NewFileHandler(v, logger),
		exportHandler:    handler.NewExportHandler(v, logger),
		frontendURL:      cfg.FrontendURL,
		apiGatewaySecret: apiGatewaySecret,
		devMode:          cfg.DevMode,
		logger:           logger,
	}
}
