package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, time.Second, cfg.Auth.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Auth.CloseGrace)
	assert.Equal(t, 5*time.Minute, cfg.Auth.Timeout)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEOWATCH_CLIENT_ID", "client-123")
	t.Setenv("DATABASE_URL", "postgres://localhost/seowatch")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  type: postgres\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "client-123", cfg.Provider.ClientID)
	assert.Equal(t, "postgres://localhost/seowatch", cfg.Storage.DSN)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Fetcher:       FetcherConfig{RequestsPerSecond: 1, Timeout: time.Second},
			Auth:          AuthConfig{PollInterval: time.Second, Timeout: time.Minute},
			Notifications: NotificationConfig{RatePerSecond: 1},
			Storage:       StorageConfig{Type: "memory"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero rate", mutate: func(c *Config) { c.Fetcher.RequestsPerSecond = 0 }},
		{name: "zero poll", mutate: func(c *Config) { c.Auth.PollInterval = 0 }},
		{name: "negative grace", mutate: func(c *Config) { c.Auth.CloseGrace = -time.Second }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Type = "postgres" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "s3" }},
	}

	ok := base()
	require.NoError(t, ok.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
