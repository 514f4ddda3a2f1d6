package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfigFile(t, `
server_port: "9090"
storage_driver: memory
wallet:
  minimum_withdrawal: 250
  coin_value: "0.50"
notifications:
  limit: 20
auth:
  jwt_secret: from-file
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("MINIMUM_WITHDRAWAL", "300")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, int64(300), cfg.Wallet.MinimumWithdrawal)
	assert.Equal(t, 20, cfg.Notifications.Limit)
	assert.Equal(t, 256, cfg.Notifications.BufferSize)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)

	value, err := cfg.CoinValue()
	require.NoError(t, err)
	assert.Equal(t, "0.5", value.String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.Wallet.MinimumWithdrawal)
	assert.Equal(t, 50, cfg.Notifications.Limit)
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MINIMUM_WITHDRAWAL", "lots")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero minimum", func(c *Config) { c.Wallet.MinimumWithdrawal = 0 }},
		{"zero notification limit", func(c *Config) { c.Notifications.Limit = 0 }},
		{"zero notification buffer", func(c *Config) { c.Notifications.BufferSize = 0 }},
		{"negative notification buffer", func(c *Config) { c.Notifications.BufferSize = -1 }},
		{"empty payout currency", func(c *Config) { c.Wallet.PayoutCurrency = "" }},
		{"bad coin value", func(c *Config) { c.Wallet.CoinValue = "abc" }},
		{"negative coin value", func(c *Config) { c.Wallet.CoinValue = "-1" }},
		{"unknown driver", func(c *Config) { c.StorageDriver = "mongo" }},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = "secret"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDBConnectionString(t *testing.T) {
	cfg := Default()
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=password dbname=studenthub sslmode=disable",
		cfg.GetDBConnectionString())

	cfg.DatabaseURL = "postgres://u:p@db:5432/x"
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.GetDBConnectionString())
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadRejectsNegativeBufferFromFile(t *testing.T) {
	path := writeConfigFile(t, `
notifications:
  buffer_size: -1
auth:
  jwt_secret: secret
`)
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer_size")
}

func TestLoadNotificationAndWalletEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ISSUER", "campus")
	t.Setenv("PAYOUT_CURRENCY", "USD")
	t.Setenv("NOTIFICATION_LIMIT", "10")
	t.Setenv("NOTIFICATION_BUFFER_SIZE", "32")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "campus", cfg.Auth.JWTIssuer)
	assert.Equal(t, "USD", cfg.Wallet.PayoutCurrency)
	assert.Equal(t, 10, cfg.Notifications.Limit)
	assert.Equal(t, 32, cfg.Notifications.BufferSize)
}

func TestLoadRejectsBadNotificationEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("NOTIFICATION_BUFFER_SIZE", "many")

	_, err := Load()
	assert.Error(t, err)
}
