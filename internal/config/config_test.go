package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Engine.LogLevel)
	assert.Equal(t, 0.95, cfg.Engine.CriticalConfidence)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 8, cfg.Worker.Count)
	assert.Equal(t, "paper", cfg.Broker.Provider)
	assert.Equal(t, "strategy_signals", cfg.Redis.SignalStream)
	assert.Equal(t, 15*time.Minute, cfg.Redis.TransientTTL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  log_level: debug
queue:
  max_attempts: 3
  visibility_timeout: 10s
worker:
  count: 4
risk:
  max_position_size: "500"
broker:
  symbol_tokens:
    RELIANCE: "738561"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Engine.LogLevel)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, "500", cfg.Risk.MaxPositionSize)
	assert.Equal(t, "738561", cfg.Broker.SymbolTokens["RELIANCE"])

	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Risk.MaxOrdersPerMin)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ENGINE_WORKER_COUNT", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Worker.Count)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero max attempts", "queue:\n  max_attempts: 0\n"},
		{"zero workers", "worker:\n  count: 0\n"},
		{"negative visibility timeout", "queue:\n  visibility_timeout: -1s\n"},
		{"dead below degraded", "health:\n  degraded_threshold: 5m\n  dead_threshold: 1m\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}
