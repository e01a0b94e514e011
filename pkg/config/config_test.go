package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "config-test-none")
	for _, k := range []string{"DB_DRIVER", "DSN", "ADDR", "LLM_MAX_TOKENS", "FANOUT_WORKERS", "FANOUT_BATCH_SIZE", "FANOUT_TIMEOUT", "LLM_TIMEOUT", "GUIDANCE_REGION", "CACHE_TYPE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, 150, cfg.LLM.MaxTokens)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "Cameroon", cfg.LLM.Region)
	assert.Equal(t, 32, cfg.Fanout.Workers)
	assert.Equal(t, 500, cfg.Fanout.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.Fanout.Timeout)
	assert.Equal(t, "gocache", cfg.Cache.Type)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "config-test-none")
	t.Setenv("FANOUT_WORKERS", "8")
	t.Setenv("FANOUT_TIMEOUT", "30")
	t.Setenv("LLM_TIMEOUT", "2s")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550000000")
	t.Setenv("BACKUP_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Fanout.Workers)
	assert.Equal(t, 30*time.Second, cfg.Fanout.Timeout)
	assert.Equal(t, 2*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "+15550000000", cfg.Twilio.PhoneNumber)
	assert.True(t, cfg.BackupEnabled)
}
