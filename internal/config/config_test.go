package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PROVIDER_BASE_URL", "http://upstream.local/v1")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ResponseTimeout)
	assert.Equal(t, 60, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 300*time.Second, cfg.Cache.ResponseTTL)
	assert.Equal(t, 600*time.Second, cfg.Cache.ModeDetectionTTL)
	assert.Equal(t, 15, cfg.Context.MaxHistory)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "http://upstream.local/v1", cfg.Provider.BaseURL)
	assert.ElementsMatch(t, []string{"/", "/health"}, cfg.RateLimit.ExemptPaths)
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  response_timeout: 5s
provider:
  base_url: http://file.local/v1
  default_model: base-model
  mode_models:
    code: code-model
rate_limit:
  max_requests: 3
  window: 10s
storage:
  type: redis
`)
	t.Setenv("PROVIDER_API_KEY", "secret-key")
	t.Setenv("REDIS_HOST", "cache.internal")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ResponseTimeout)
	assert.Equal(t, "secret-key", cfg.Provider.APIKey)
	assert.Equal(t, "cache.internal:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 3, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "code-model", cfg.Provider.ModelFor("code"))
	assert.Equal(t, "base-model", cfg.Provider.ModelFor("research"))
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing provider", "server:\n  port: 8001\n"},
		{"bad storage", "provider:\n  base_url: http://x\nstorage:\n  type: sqlite\n"},
		{"zero window", "provider:\n  base_url: http://x\nrate_limit:\n  window: 0s\n"},
		{"zero janitor interval", "provider:\n  base_url: http://x\njanitor:\n  interval: 0s\n"},
		{"negative truncation", "provider:\n  base_url: http://x\ncontext:\n  turn_ceiling: 100\n  truncated_length: -1\n"},
		{"truncation above ceiling", "provider:\n  base_url: http://x\ncontext:\n  turn_ceiling: 100\n  truncated_length: 200\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
