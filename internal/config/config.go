package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        string     `env:"PORT" envDefault:"8080"`
	Environment string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    slog.Level `env:"-"`
	RawLogLevel string     `env:"LOG_LEVEL" envDefault:"info"`

	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/characters.db"`

	GSTolerance   int           `env:"GS_TOLERANCE" envDefault:"100"`
	ShadowTimeout time.Duration `env:"SHADOW_TIMEOUT" envDefault:"30s"`
	MaxRounds     int           `env:"MAX_ROUNDS" envDefault:"50"`
	MatchTypes    []string      `env:"MATCH_TYPES" envDefault:"1v1" envSeparator:","`
	MatchTick     time.Duration `env:"MATCH_TICK" envDefault:"1s"`

	SessionLockTTL  time.Duration `env:"SESSION_LOCK_TTL" envDefault:"10s"`
	UpstreamRetries int           `env:"UPSTREAM_RETRIES" envDefault:"3"`
	RateLimitTick   time.Duration `env:"RATE_LIMIT_TICK" envDefault:"1s"`

	WorkerID string `env:"WORKER_ID"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.RawLogLevel)

	if cfg.GSTolerance < 0 {
		return nil, fmt.Errorf("GS_TOLERANCE must be >= 0, got %d", cfg.GSTolerance)
	}
	if cfg.MaxRounds <= 0 {
		return nil, fmt.Errorf("MAX_ROUNDS must be positive, got %d", cfg.MaxRounds)
	}
	if cfg.UpstreamRetries < 1 {
		return nil, fmt.Errorf("UPSTREAM_RETRIES must be at least 1, got %d", cfg.UpstreamRetries)
	}
	if cfg.MatchTick <= 0 {
		return nil, fmt.Errorf("MATCH_TICK must be positive, got %s", cfg.MatchTick)
	}
	types := cfg.MatchTypes[:0]
	for _, mt := range cfg.MatchTypes {
		if mt = strings.TrimSpace(mt); mt != "" {
			types = append(types, mt)
		}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("MATCH_TYPES must name at least one match type")
	}
	cfg.MatchTypes = types
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
