// Package queue holds the Redis connection shared by the combat services and
// the matchmaking queues built on it.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the shared Redis connection. Session storage, locks, events and
// the match queues all borrow its underlying client.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient builds a client for redisURL. Connections are opened lazily;
// callers wait for the server with RedisStorage.WaitForConnection.
func NewClient(redisURL string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}

	logger.Info("Redis client configured", "addr", opt.Addr, "db", opt.DB)
	return &Client{rdb: redis.NewClient(opt), logger: logger}, nil
}

// Wrap builds a Client around an existing connection.
func Wrap(rdb *redis.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rdb: rdb, logger: logger}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetRedisClient exposes the connection to the stores that share it.
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}
