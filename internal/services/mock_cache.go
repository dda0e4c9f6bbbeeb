package services

import (
	"context"
	"sync"
	"time"

	"github.com/jwebster45206/combat-engine/internal/errs"
)

// MockLocker is an in-process Locker for testing
type MockLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	waitCh chan struct{}

	// AcquireFunc overrides Acquire when set.
	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (func(), error)

	// Track calls for testing
	AcquireCalls []string
}

var _ Locker = (*MockLocker)(nil)

// NewMockLocker creates a new mock locker
func NewMockLocker() *MockLocker {
	return &MockLocker{
		held:   make(map[string]bool),
		waitCh: make(chan struct{}),
	}
}

func (m *MockLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	release, _ := m.take(key)
	return release, release != nil, nil
}

// take grabs key or returns the channel closed by the next release. The
// caller holds m.mu, so a release cannot slip between the check and the
// wait.
func (m *MockLocker) take(key string) (func(), <-chan struct{}) {
	m.AcquireCalls = append(m.AcquireCalls, key)
	if m.held[key] {
		return nil, m.waitCh
	}
	m.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			close(m.waitCh)
			m.waitCh = make(chan struct{})
			m.mu.Unlock()
		})
	}, nil
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key, ttl)
	}
	for {
		m.mu.Lock()
		release, wait := m.take(key)
		m.mu.Unlock()
		if release != nil {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, errs.Upstream(ctx.Err(), "wait for lock %s", key)
		case <-wait:
		}
	}
}

// Held reports whether key is currently locked.
func (m *MockLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}
