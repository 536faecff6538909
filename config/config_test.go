package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, ":3001", cfg.Addr())
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 25*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.PingTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, DefaultRedisChannel, cfg.RedisChannel)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":             "8080",
		"CORS_ORIGIN":      "https://pos.example, https://admin.example,",
		"LOG_LEVEL":        "DEBUG",
		"PING_INTERVAL":    "10s",
		"PING_TIMEOUT":     "30s",
		"SHUTDOWN_TIMEOUT": "3s",
		"REDIS_URL":        "redis://localhost:6379/0",
		"REDIS_CHANNEL":    "relay",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"https://pos.example", "https://admin.example"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.PingTimeout)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "relay", cfg.RedisChannel)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "port not a number", vars: map[string]string{"PORT": "http"}},
		{name: "port out of range", vars: map[string]string{"PORT": "70000"}},
		{name: "bad duration", vars: map[string]string{"PING_INTERVAL": "soon"}},
		{name: "timeout below interval", vars: map[string]string{"PING_INTERVAL": "30s", "PING_TIMEOUT": "20s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsProcessEnv(t *testing.T) {
	t.Setenv("PORT", "4555")
	t.Setenv("CORS_ORIGIN", "https://pos.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4555, cfg.Port)
	assert.Equal(t, []string{"https://pos.example"}, cfg.AllowedOrigins)
}
