package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-engine/internal/errs"
)

// releaseScript deletes the lock only if it is still held by the caller.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// lockPollInterval is the wait between acquisition attempts.
const lockPollInterval = 20 * time.Millisecond

// RedisService implements Locker and Throttler on Redis.
type RedisService struct {
	client *redis.Client
	logger *slog.Logger
}

var (
	_ Locker    = (*RedisService)(nil)
	_ Throttler = (*RedisService)(nil)
)

// NewRedisService creates a new Redis service instance
func NewRedisService(client *redis.Client, logger *slog.Logger) *RedisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisService{
		client: client,
		logger: logger,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

func (r *RedisService) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		r.logger.Error("Redis lock acquire failed", "key", key, "error", err)
		return nil, false, errs.Upstream(err, "acquire lock %s", key)
	}
	if !ok {
		return nil, false, nil
	}
	r.logger.Debug("Lock acquired", "key", key)
	return r.releaser(key, token), true, nil
}

func (r *RedisService) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	for {
		release, ok, err := r.TryAcquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, errs.Upstream(ctx.Err(), "wait for lock %s", key)
		case <-time.After(lockPollInterval):
		}
	}
}

func (r *RedisService) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the caller's ctx was cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("Failed to release lock", "key", key, "error", err)
				return
			}
			r.logger.Debug("Lock released", "key", key)
		})
	}
}

func (r *RedisService) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, time.Now().Unix(), window).Result()
	if err != nil {
		r.logger.Error("Redis throttle check failed", "key", key, "error", err)
		return false, errs.Upstream(err, "throttle %s", key)
	}
	return ok, nil
}

func (r *RedisService) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}
