package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunserk/sacco-core/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sacco.db", cfg.Database.Path)
	assert.Equal(t, "KES", cfg.Pesapal.Currency)
	assert.Equal(t, "4.0", cfg.Savings.AnnualInterestRate)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.False(t, cfg.Pesapal.Enabled(), "no credentials means gateway disabled")
	assert.False(t, cfg.SMTP.Enabled(), "no host means mail disabled")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("PESAPAL_CONSUMER_KEY", "key")
	t.Setenv("PESAPAL_CONSUMER_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.True(t, cfg.Pesapal.Enabled())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "-1")
	_, err := config.Load()
	assert.Error(t, err)
}
