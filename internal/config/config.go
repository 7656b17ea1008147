// Package config loads gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Credential backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the complete gateway configuration. Every field maps to one
// environment variable of the same name.
type Config struct {
	DevMode    bool   `mapstructure:"DEV_MODE"`
	ListenAddr string `mapstructure:"LISTEN_ADDR" validate:"required"`
	LogLevel   string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat  string `mapstructure:"LOG_FORMAT" validate:"oneof=json console"`

	GoogleClientID          string `mapstructure:"GOOGLE_CLIENT_ID" validate:"required_if=DevMode false"`
	GoogleRedirectURL       string `mapstructure:"GOOGLE_REDIRECT_URL" validate:"omitempty,url"`
	GoogleClientSecretParam string `mapstructure:"GOOGLE_CLIENT_SECRET_PARAM" validate:"required"`
	StateSecretParam        string `mapstructure:"STATE_SECRET_PARAM" validate:"required"`
	APIGatewaySecretParam   string `mapstructure:"API_GATEWAY_SECRET_PARAM" validate:"required"`
	KMSKeyID                string `mapstructure:"KMS_KEY_ID"`

	CredentialBackend string `mapstructure:"CREDENTIAL_BACKEND" validate:"oneof=dynamodb postgres memory"`
	CredentialsTable  string `mapstructure:"CREDENTIALS_TABLE" validate:"required"`
	DatabaseURL       string `mapstructure:"DATABASE_URL" validate:"required_if=CredentialBackend postgres"`
	FolderLockTable   string `mapstructure:"FOLDER_LOCK_TABLE"`

	VaultRootFolderID   string `mapstructure:"VAULT_ROOT_FOLDER_ID" validate:"required_if=DevMode false"`
	FrontendURL         string `mapstructure:"FRONTEND_URL" validate:"required,url"`
	ExportPipelineDepth int    `mapstructure:"EXPORT_PIPELINE_DEPTH" validate:"gte=1,lte=64"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET_PARAM", "/vaultgw/google-client-secret")
	v.SetDefault("STATE_SECRET_PARAM", "/vaultgw/state-secret")
	v.SetDefault("API_GATEWAY_SECRET_PARAM", "/vaultgw/api-gateway-secret")
	v.SetDefault("KMS_KEY_ID", "alias/vaultgw-credential-key")
	v.SetDefault("CREDENTIAL_BACKEND", BackendDynamoDB)
	v.SetDefault("CREDENTIALS_TABLE", "VaultCredentials")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("FOLDER_LOCK_TABLE", "")
	v.SetDefault("VAULT_ROOT_FOLDER_ID", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("EXPORT_PIPELINE_DEPTH", 4)
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDevDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDevDefaults fills what a local run cannot get from a deployment.
func applyDevDefaults(cfg *Config) {
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if !cfg.DevMode {
		return
	}
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = "http://localhost" + cfg.ListenAddr + "/auth/callback"
	}
	if cfg.VaultRootFolderID == "" {
		cfg.VaultRootFolderID = "root"
	}
}

// RedirectURL returns the OAuth callback URL, derived from FrontendURL when
// not set explicitly.
func (c *Config) RedirectURL() string {
	if c.GoogleRedirectURL != "" {
		return c.GoogleRedirectURL
	}
	return strings.TrimSuffix(c.FrontendURL, "/") + "/api/auth/callback"
}

// Validate checks struct tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
		}
		return err
	}
	return nil
}
