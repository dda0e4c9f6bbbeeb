package services

import (
	"context"
	"time"
)

// Locker serializes work on a key across processes.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// release func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)

	// TryAcquire takes the lock only if it is free.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Throttler admits at most one call per key per window.
type Throttler interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// LockKey returns the lock key for a session.
func LockKey(sessionID string) string {
	return "combat:rbc:" + sessionID + ":lock"
}

// ThrottleKey returns the edge throttle key for a user.
func ThrottleKey(userID string) string {
	return "throttle:" + userID
}
