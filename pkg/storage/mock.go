package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// MockStorage is an in-memory Storage for tests. Values are stored as JSON
// so callers never share pointers with the store.
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[string][]byte
	results   map[string][]byte
	pending   map[string]map[string]combat.Move
	pingError error

	// failures makes the next N store calls return UPSTREAM_UNAVAILABLE.
	failures int
	Calls    int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[string][]byte),
		results:  make(map[string][]byte),
		pending:  make(map[string]map[string]combat.Move),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// FailNext makes the next n calls fail as if the store were down.
func (m *MockStorage) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *MockStorage) fail() error {
	m.Calls++
	if m.failures > 0 {
		m.failures--
		return errs.Upstream(errors.New("connection refused"), "mock store")
	}
	return nil
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) CreateSession(ctx context.Context, s *combat.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if _, ok := m.sessions[s.Meta.ID]; ok {
		return errs.Conflict("session %s already exists", s.Meta.ID)
	}
	return m.put(s)
}

func (m *MockStorage) put(s *combat.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.sessions[s.Meta.ID] = data
	return nil
}

func (m *MockStorage) LoadSession(ctx context.Context, sessionID string) (*combat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	data, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.NotFound("session %s", sessionID)
	}
	var s combat.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MockStorage) LoadMeta(ctx context.Context, sessionID string) (*combat.SessionMeta, error) {
	s, err := m.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Meta, nil
}

func (m *MockStorage) Commit(ctx context.Context, s *combat.Session, result *combat.ActionResult, consumed ...combat.Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if err := m.put(s); err != nil {
		return err
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		m.results[s.Meta.ID+":"+result.MoveID] = data
		parked := m.pending[s.Meta.ID]
		for _, mv := range consumed {
			m.results[s.Meta.ID+":"+mv.MoveID] = data
			if p, ok := parked[mv.CharID]; ok && p.MoveID == mv.MoveID {
				delete(parked, mv.CharID)
			}
		}
	}
	return nil
}

func (m *MockStorage) LoadResult(ctx context.Context, sessionID, moveID string) (*combat.ActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	data, ok := m.results[sessionID+":"+moveID]
	if !ok {
		return nil, nil
	}
	var r combat.ActionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *MockStorage) SetPending(ctx context.Context, sessionID string, mv combat.Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if m.pending[sessionID] == nil {
		m.pending[sessionID] = make(map[string]combat.Move)
	}
	m.pending[sessionID][mv.CharID] = mv
	return nil
}

func (m *MockStorage) Pending(ctx context.Context, sessionID string) (map[string]combat.Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	out := make(map[string]combat.Move, len(m.pending[sessionID]))
	for k, v := range m.pending[sessionID] {
		out[k] = v
	}
	return out, nil
}
