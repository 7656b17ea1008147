package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DevModeDefaults(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("CREDENTIAL_BACKEND", "memory")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.DevMode)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "root", cfg.VaultRootFolderID)
	assert.Equal(t, "http://localhost:8080/auth/callback", cfg.RedirectURL())
	assert.Equal(t, 4, cfg.ExportPipelineDepth)
	assert.Equal(t, BackendMemory, cfg.CredentialBackend)
}

func TestLoad_ProductionRequiresClientAndRoot(t *testing.T) {
	t.Setenv("DEV_MODE", "false")
	t.Setenv("GOOGLE_CLIENT_ID", "")

	_, err := load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GoogleClientID")
}

func TestLoad_Production(t *testing.T) {
	t.Setenv("DEV_MODE", "false")
	t.Setenv("GOOGLE_CLIENT_ID", "client.apps.googleusercontent.com")
	t.Setenv("VAULT_ROOT_FOLDER_ID", "1VaultRootFolder")
	t.Setenv("FRONTEND_URL", "https://portal.example.edu/")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.edu/api/auth/callback", cfg.RedirectURL())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, BackendDynamoDB, cfg.CredentialBackend)
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("CREDENTIAL_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL")
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("CREDENTIAL_BACKEND", "redis")

	_, err := load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CredentialBackend")
}
