package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 3000, cfg.Webhook.TimeoutMs)
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 90.0, cfg.Webhook.AlertThreshold)
	assert.Equal(t, "API-Gateway-Webhook/1.0", cfg.Webhook.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.Interval)
	assert.Equal(t, 3*time.Minute, cfg.Dispatcher.ClaimLease)
	assert.Equal(t, "journal-entry-save", cfg.Gateway.Products.SaveJournalEntry)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, 86400, cfg.CORS.MaxAge)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("webhook:\n  max_attempts: 5\nrate_limit:\n  backend: redis\n"), 0o600))

	t.Setenv("JGW_WEBHOOK_TIMEOUT_MS", "1500")
	t.Setenv("INTERNAL_API_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 1500, cfg.Webhook.TimeoutMs)
	assert.Equal(t, "s3cret", cfg.Internal.APISecret)
}
