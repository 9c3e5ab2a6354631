package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EVENTS_DB_PATH", "HTTP_ADDR", "DISPATCHER_INTERVAL_MS",
		"FACT_WINDOW_SIZE", "MAX_REPLAN_ATTEMPTS",
		"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY_ENV", "LLM_TEMPERATURE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "incident-agent.db", cfg.EventsDBPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 750, int(cfg.DispatcherInterval.Milliseconds()))
	assert.Equal(t, 16, cfg.FactWindowSize)
	assert.Equal(t, 0, cfg.MaxReplanAttempts)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestLoadFromEnvHonorsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVENTS_DB_PATH", "/tmp/custom.db")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DISPATCHER_INTERVAL_MS", "250")
	t.Setenv("FACT_WINDOW_SIZE", "32")
	t.Setenv("MAX_REPLAN_ATTEMPTS", "3")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.EventsDBPath)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 250, int(cfg.DispatcherInterval.Milliseconds()))
	assert.Equal(t, 32, cfg.FactWindowSize)
	assert.Equal(t, 3, cfg.MaxReplanAttempts)
}

func TestLoadFromEnvRejectsInvalidDispatcherInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISPATCHER_INTERVAL_MS", "not-a-number")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvRejectsZeroFactWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACT_WINDOW_SIZE", "0")

	_, err := LoadFromEnv()
	require.Error(t, err)
}
