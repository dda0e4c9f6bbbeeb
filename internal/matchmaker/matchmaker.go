// Package matchmaker pairs queued characters into PvP sessions and falls
// back to shadow opponents when nobody suitable shows up in time.
package matchmaker

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/internal/services"
	"github.com/jwebster45206/combat-engine/internal/services/queue"
)

// SessionCreator opens sessions for matched entries.
type SessionCreator interface {
	CreateMatch(ctx context.Context, matchType, charA, charB string) (string, error)
	CreateShadow(ctx context.Context, matchType, charID string) (string, error)
}

// GearScorer reports a character's gear score.
type GearScorer interface {
	GearScore(ctx context.Context, charID string) (int, error)
}

// Config holds the pairing policy.
type Config struct {
	MatchTypes    []string
	Tolerance     int
	ShadowTimeout time.Duration
	LockTTL       time.Duration
}

// Join statuses.
const (
	JoinJoined    = "joined"
	JoinCancelled = "cancelled"
	JoinError     = "error"
)

// Poll statuses.
const (
	MatchFound         = "found"
	MatchWaiting       = "waiting"
	MatchCreatedShadow = "created_shadow"
	MatchError         = "error"
)

// JoinResult is the ArenaQueueResponse returned by join and cancel.
type JoinResult struct {
	Status  string `json:"status"`
	GS      *int   `json:"gs,omitempty"`
	Message string `json:"message"`
}

// MatchStatus is the ArenaMatchResponse returned by poll.
type MatchStatus struct {
	SessionID *string        `json:"session_id,omitempty"`
	IsShadow  bool           `json:"is_shadow"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
}

type Matchmaker struct {
	queue    *queue.MatchQueue
	locker   services.Locker
	sessions SessionCreator
	scorer   GearScorer
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// New validates the policy and builds a Matchmaker.
func New(q *queue.MatchQueue, locker services.Locker, sessions SessionCreator, scorer GearScorer,
	cfg Config, logger *slog.Logger) (*Matchmaker, error) {
	if cfg.Tolerance < 0 {
		return nil, errs.InvalidArgument("gs tolerance must be >= 0, got %d", cfg.Tolerance)
	}
	if len(cfg.MatchTypes) == 0 {
		return nil, errs.InvalidArgument("at least one match type is required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matchmaker{
		queue:    q,
		locker:   locker,
		sessions: sessions,
		scorer:   scorer,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// SetClock replaces the time source.
func (m *Matchmaker) SetClock(now func() time.Time) {
	m.now = now
}

// MatchTypes returns the configured match types.
func (m *Matchmaker) MatchTypes() []string {
	return slices.Clone(m.cfg.MatchTypes)
}

// Depths reports the number of queued characters per match type.
func (m *Matchmaker) Depths(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(m.cfg.MatchTypes))
	for _, mt := range m.cfg.MatchTypes {
		n, err := m.queue.Depth(ctx, mt)
		if err != nil {
			return nil, err
		}
		out[mt] = n
	}
	return out, nil
}

func (m *Matchmaker) checkMatchType(matchType string) error {
	if !slices.Contains(m.cfg.MatchTypes, matchType) {
		return errs.InvalidArgument("unknown match type %q", matchType)
	}
	return nil
}

// Join queues a character. Joining while already queued is a no-op.
func (m *Matchmaker) Join(ctx context.Context, charID, matchType string) (JoinResult, error) {
	if charID == "" {
		return JoinResult{Status: JoinError, Message: "char_id is required"}, errs.Validation("char_id is required")
	}
	if err := m.checkMatchType(matchType); err != nil {
		return JoinResult{Status: JoinError, Message: err.Error()}, err
	}
	log := m.logger.With("char_id", charID, "match_type", matchType)

	gs, err := m.scorer.GearScore(ctx, charID)
	if err != nil {
		return JoinResult{Status: JoinError, Message: "could not read gear"}, err
	}

	release, err := m.locker.Acquire(ctx, queue.LockKey(matchType), m.cfg.LockTTL)
	if err != nil {
		return JoinResult{Status: JoinError, Message: "queue busy"}, err
	}
	res, err := m.join(ctx, charID, matchType, gs)
	release()
	if err != nil {
		return res, err
	}
	log.Info("Joined queue", "gs", gs)

	if _, err := m.Tick(ctx, matchType); err != nil {
		log.Warn("Scan after join failed", "error", err)
	}
	return res, nil
}

func (m *Matchmaker) join(ctx context.Context, charID, matchType string, gs int) (JoinResult, error) {
	if other, err := m.queue.MatchTypeOf(ctx, charID); err != nil {
		return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
	} else if other != "" && other != matchType {
		prev, err := m.queue.Get(ctx, other, charID)
		if err != nil {
			return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
		}
		if prev != nil && !prev.Status.Terminal() {
			return JoinResult{Status: JoinError, Message: "already queued for " + other},
				errs.Conflict("%s is already queued for %s", charID, other)
		}
	}

	existing, err := m.queue.Get(ctx, matchType, charID)
	if err != nil {
		return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
	}
	if existing != nil {
		switch {
		case existing.Status == queue.StatusQueued:
			return JoinResult{Status: JoinJoined, GS: &existing.GS, Message: "already queued"}, nil
		case !existing.Status.Terminal():
			return JoinResult{Status: JoinError, Message: "match in progress"},
				errs.Conflict("%s is %s", charID, existing.Status)
		}
	}

	e := queue.Entry{
		CharID:    charID,
		MatchType: matchType,
		Status:    queue.StatusQueued,
		GS:        gs,
		JoinedAt:  m.now().UTC(),
	}
	if err := m.queue.Add(ctx, e); err != nil {
		return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
	}
	return JoinResult{Status: JoinJoined, GS: &gs, Message: "queued for " + matchType}, nil
}

// Cancel removes a queued character. Cancelling twice is a no-op; an entry
// that has been paired can no longer be cancelled.
func (m *Matchmaker) Cancel(ctx context.Context, charID, matchType string) (JoinResult, error) {
	if matchType == "" {
		mt, err := m.queue.MatchTypeOf(ctx, charID)
		if err != nil {
			return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
		}
		matchType = mt
	}
	if matchType == "" {
		return JoinResult{Status: JoinError, Message: "not queued"}, errs.NotFound("no queue entry for %s", charID)
	}

	release, err := m.locker.Acquire(ctx, queue.LockKey(matchType), m.cfg.LockTTL)
	if err != nil {
		return JoinResult{Status: JoinError, Message: "queue busy"}, err
	}
	defer release()

	e, err := m.queue.Get(ctx, matchType, charID)
	if err != nil {
		return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
	}
	if e == nil {
		return JoinResult{Status: JoinError, Message: "not queued"}, errs.NotFound("no queue entry for %s", charID)
	}
	switch e.Status {
	case queue.StatusCancelled:
		return JoinResult{Status: JoinCancelled, Message: "already cancelled"}, nil
	case queue.StatusQueued:
		e.Status = queue.StatusCancelled
		if err := m.queue.Update(ctx, *e); err != nil {
			return JoinResult{Status: JoinError, Message: "queue unavailable"}, err
		}
		m.logger.Info("Left queue", "char_id", charID, "match_type", matchType)
		return JoinResult{Status: JoinCancelled, Message: "left the queue"}, nil
	default:
		msg := "already " + string(e.Status)
		if e.Status.Terminal() {
			msg = "already terminal"
		}
		return JoinResult{Status: JoinError, Message: msg},
			errs.Conflict("cannot cancel %s entry of %s", e.Status, charID)
	}
}

// Poll reports the match state of a character. A queued entry triggers a
// scan first so that shadow promotion does not depend on the worker.
func (m *Matchmaker) Poll(ctx context.Context, charID string) (MatchStatus, error) {
	matchType, err := m.queue.MatchTypeOf(ctx, charID)
	if err != nil {
		return MatchStatus{Status: MatchError, Metadata: map[string]any{}}, err
	}
	if matchType == "" {
		return MatchStatus{Status: MatchError, Metadata: map[string]any{"reason": "not queued"}},
			errs.NotFound("no queue entry for %s", charID)
	}

	e, err := m.queue.Get(ctx, matchType, charID)
	if err == nil && e != nil && e.Status == queue.StatusQueued {
		if _, terr := m.Tick(ctx, matchType); terr != nil {
			m.logger.Warn("Scan on poll failed", "match_type", matchType, "error", terr)
		}
		e, err = m.queue.Get(ctx, matchType, charID)
	}
	if err != nil {
		return MatchStatus{Status: MatchError, Metadata: map[string]any{}}, err
	}
	if e == nil {
		return MatchStatus{Status: MatchError, Metadata: map[string]any{"reason": "not queued"}},
			errs.NotFound("no queue entry for %s", charID)
	}

	st := MatchStatus{
		IsShadow: e.IsShadow,
		Metadata: map[string]any{
			"match_type": matchType,
			"state":      string(e.Status),
			"gs":         e.GS,
			"waited_s":   m.now().Sub(e.JoinedAt).Seconds(),
		},
	}
	if e.SessionID != "" {
		sid := e.SessionID
		st.SessionID = &sid
	}
	switch e.Status {
	case queue.StatusCreated:
		st.Status = MatchFound
	case queue.StatusShadowCreated:
		st.Status = MatchCreatedShadow
	case queue.StatusQueued, queue.StatusPaired, queue.StatusCreating:
		st.Status = MatchWaiting
	default:
		st.Status = MatchError
		st.Metadata["reason"] = string(e.Status)
	}
	return st, nil
}
