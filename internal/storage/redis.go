// Package storage holds the Redis-backed session store and the SQLite
// character store.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-engine/pkg/storage"
)

// DefaultSessionTTL bounds how long session keys outlive their last write.
const DefaultSessionTTL = 24 * time.Hour

// RedisStorage implements storage.Storage on the combat:rbc:* key space.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration

	connectAttempts int
	connectDelay    time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a session store over an existing client.
func NewRedisStorage(client *redis.Client, logger *slog.Logger) *RedisStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStorage{
		client: client,
		logger:          logger,
		ttl:             DefaultSessionTTL,
		connectAttempts: 30,
		connectDelay:    2 * time.Second,
	}
}

// WithTTL overrides the key expiry applied on every write.
func (r *RedisStorage) WithTTL(ttl time.Duration) *RedisStorage {
	r.ttl = ttl
	return r
}

// WithConnectRetry overrides how WaitForConnection polls.
func (r *RedisStorage) WithConnectRetry(attempts int, delay time.Duration) *RedisStorage {
	r.connectAttempts = max(attempts, 1)
	r.connectDelay = delay
	return r
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection pings Redis until it answers, ctx is done or the
// attempts run out. Both processes call it before serving.
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	for i := 1; i <= r.connectAttempts; i++ {
		err := r.Ping(ctx)
		if err == nil {
			r.logger.Info("Redis connection established", "attempt", i)
			return nil
		}
		r.logger.Debug("Redis not ready yet", "error", err, "attempt", i)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
		case <-time.After(r.connectDelay):
		}
	}
	return fmt.Errorf("redis did not become available after %d attempts", r.connectAttempts)
}
