package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-engine/internal/errs"
)

func setupTestRedis(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisService(client, slog.Default()), mr
}

func TestTryAcquireExclusive(t *testing.T) {
	svc, mr := setupTestRedis(t)
	ctx := context.Background()
	key := LockKey("sess-1")

	release, ok, err := svc.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("combat:rbc:sess-1:lock"))

	_, ok, err = svc.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release()
	assert.False(t, mr.Exists(key))

	_, ok, err = svc.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	svc, mr := setupTestRedis(t)
	ctx := context.Background()
	key := LockKey("sess-1")

	release, ok, err := svc.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Lock expired and was taken by someone else.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(key, "other-owner"))

	release()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestAcquireSerializes(t *testing.T) {
	svc, _ := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := svc.Acquire(ctx, LockKey("sess-1"), time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestAcquireHonoursContext(t *testing.T) {
	svc, _ := setupTestRedis(t)
	_, ok, err := svc.TryAcquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = svc.Acquire(ctx, "k", time.Minute)
	assert.True(t, errs.IsCode(err, errs.CodeUpstreamUnavailable))
}

func TestThrottleAllowOncePerWindow(t *testing.T) {
	svc, mr := setupTestRedis(t)
	ctx := context.Background()
	key := ThrottleKey("user-1")

	ok, err := svc.Allow(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Allow(ctx, key, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = svc.Allow(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMockLockerSerializes(t *testing.T) {
	m := NewMockLocker()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, m.Held("k"))

	done := make(chan struct{})
	go func() {
		r2, err := m.Acquire(ctx, "k", time.Second)
		assert.NoError(t, err)
		r2()
		close(done)
	}()

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire never returned")
	}
	assert.False(t, m.Held("k"))
}

func TestMockLockerContention(t *testing.T) {
	m := NewMockLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	inside := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				release, err := m.Acquire(ctx, "k", time.Second)
				if !assert.NoError(t, err) {
					return
				}
				inside++
				inside--
				release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, inside)
	assert.False(t, m.Held("k"))
}
