package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 100, cfg.GSTolerance)
	assert.Equal(t, 30*time.Second, cfg.ShadowTimeout)
	assert.Equal(t, 50, cfg.MaxRounds)
	assert.Equal(t, []string{"1v1"}, cfg.MatchTypes)
	assert.Equal(t, time.Second, cfg.RateLimitTick)
	assert.Equal(t, 3, cfg.UpstreamRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("GS_TOLERANCE", "0")
	t.Setenv("SHADOW_TIMEOUT", "1s")
	t.Setenv("MATCH_TYPES", "1v1, 2v2 ,")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 0, cfg.GSTolerance)
	assert.Equal(t, time.Second, cfg.ShadowTimeout)
	assert.Equal(t, []string{"1v1", "2v2"}, cfg.MatchTypes)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"negative tolerance", "GS_TOLERANCE", "-5"},
		{"zero rounds", "MAX_ROUNDS", "0"},
		{"not a number", "MAX_ROUNDS", "many"},
		{"bad duration", "SHADOW_TIMEOUT", "soon"},
		{"no retries", "UPSTREAM_RETRIES", "0"},
		{"blank match types", "MATCH_TYPES", " , "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
