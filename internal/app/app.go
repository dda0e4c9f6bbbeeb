// Package app wires the combat core to its stores for the api and worker
// processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jwebster45206/combat-engine/internal/assembler"
	"github.com/jwebster45206/combat-engine/internal/config"
	"github.com/jwebster45206/combat-engine/internal/matchmaker"
	"github.com/jwebster45206/combat-engine/internal/services"
	"github.com/jwebster45206/combat-engine/internal/services/events"
	"github.com/jwebster45206/combat-engine/internal/services/queue"
	"github.com/jwebster45206/combat-engine/internal/session"
	"github.com/jwebster45206/combat-engine/internal/storage"
	"github.com/jwebster45206/combat-engine/internal/storage/sqlite"
	"github.com/jwebster45206/combat-engine/pkg/catalog"
	"github.com/jwebster45206/combat-engine/pkg/chance"
	"github.com/jwebster45206/combat-engine/pkg/combat"
	"github.com/jwebster45206/combat-engine/pkg/hydrator"
)

// App holds the long-lived components shared by the processes.
type App struct {
	Redis       *queue.Client
	Characters  *sqlite.Store
	Sessions    *storage.RedisStorage
	Locks       *services.RedisService
	Broadcaster *events.Broadcaster
	Runtime     *session.Runtime
	Matchmaker  *matchmaker.Matchmaker
	logger      *slog.Logger
}

// New connects to Redis and SQLite and builds the runtime and matchmaker.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	client, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	chars, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to open character store: %w", err)
	}

	a, err := build(cfg, client, chars, log)
	if err != nil {
		_ = chars.Close()
		_ = client.Close()
		return nil, err
	}
	if err := a.Sessions.WaitForConnection(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to reach session store: %w", err)
	}
	return a, nil
}

func build(cfg *config.Config, client *queue.Client, chars *sqlite.Store, log *slog.Logger) (*App, error) {
	rdb := client.GetRedisClient()
	oracle, err := chance.New()
	if err != nil {
		return nil, fmt.Errorf("failed to seed chance oracle: %w", err)
	}
	cat := catalog.Default()

	a := &App{
		Redis:       client,
		Characters:  chars,
		Sessions:    storage.NewRedisStorage(rdb, log),
		Locks:       services.NewRedisService(rdb, log),
		Broadcaster: events.NewBroadcaster(rdb, log),
		logger:      log,
	}
	a.Runtime = session.New(
		a.Sessions,
		a.Locks,
		assembler.New(chars, log),
		hydrator.New(cat, log),
		combat.NewResolver(cat, oracle, cfg.MaxRounds),
		log,
		session.WithPublisher(a.Broadcaster),
		session.WithRewardWriter(chars),
		session.WithConfig(session.Config{
			LockTTL:         cfg.SessionLockTTL,
			UpstreamRetries: cfg.UpstreamRetries,
			RetryBackoff:    50 * time.Millisecond,
		}),
	)

	a.Matchmaker, err = matchmaker.New(queue.NewMatchQueue(client), a.Locks, a.Runtime, a.Runtime,
		matchmaker.Config{
			MatchTypes:    cfg.MatchTypes,
			Tolerance:     cfg.GSTolerance,
			ShadowTimeout: cfg.ShadowTimeout,
			LockTTL:       cfg.SessionLockTTL,
		}, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// HealthComponents lists the dependencies reported by the health endpoint.
func (a *App) HealthComponents() map[string]services.HealthChecker {
	return map[string]services.HealthChecker{
		"redis":  a.Redis,
		"sqlite": a.Characters,
	}
}

// Close releases the Redis connection pool and the database.
func (a *App) Close() error {
	return errors.Join(a.Characters.Close(), a.Redis.Close())
}
