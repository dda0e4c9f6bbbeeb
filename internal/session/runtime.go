// Package session is the Session Runtime: it owns the authoritative state of
// live fights and serializes every mutation through a per-session lock.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/internal/services"
	"github.com/jwebster45206/combat-engine/internal/services/events"
	"github.com/jwebster45206/combat-engine/pkg/character"
	"github.com/jwebster45206/combat-engine/pkg/combat"
	"github.com/jwebster45206/combat-engine/pkg/hydrator"
	"github.com/jwebster45206/combat-engine/pkg/storage"
)

// Assembler loads character snapshots.
type Assembler interface {
	Assemble(ctx context.Context, charID string, scope character.Scope) (*character.Snapshot, error)
}

// RewardWriter persists rewards once a session has ended.
type RewardWriter interface {
	ApplyRewards(ctx context.Context, sessionID string, rewards map[string]combat.Reward) error
}

// Config tunes the runtime.
type Config struct {
	LockTTL         time.Duration
	UpstreamRetries int
	RetryBackoff    time.Duration
}

// DefaultConfig matches the service defaults.
func DefaultConfig() Config {
	return Config{
		LockTTL:         10 * time.Second,
		UpstreamRetries: 3,
		RetryBackoff:    50 * time.Millisecond,
	}
}

// Runtime implements create, submit, inspect and terminate.
type Runtime struct {
	store     storage.Storage
	locker    services.Locker
	assembler Assembler
	hydrator  *hydrator.Hydrator
	resolver  *combat.Resolver
	publisher events.Publisher
	rewards   RewardWriter
	cfg       Config
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithPublisher publishes lifecycle events.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runtime) { r.publisher = p }
}

// WithRewardWriter persists rewards when a session ends.
func WithRewardWriter(w RewardWriter) Option {
	return func(r *Runtime) { r.rewards = w }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithIDGenerator injects the session and AI move ID source.
func WithIDGenerator(newID func() string) Option {
	return func(r *Runtime) { r.newID = newID }
}

func New(store storage.Storage, locker services.Locker, asm Assembler, hyd *hydrator.Hydrator,
	resolver *combat.Resolver, logger *slog.Logger, opts ...Option) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		store:     store,
		locker:    locker,
		assembler: asm,
		hydrator:  hyd,
		resolver:  resolver,
		cfg:       DefaultConfig(),
		now:       time.Now,
		newID:     newUUID,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.UpstreamRetries < 1 {
		r.cfg.UpstreamRetries = 1
	}
	return r
}

// retry runs fn until it succeeds, fails with a non-upstream error, or the
// attempt budget is spent.
func (r *Runtime) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.cfg.UpstreamRetries; attempt++ {
		err = fn()
		if err == nil || !errs.IsCode(err, errs.CodeUpstreamUnavailable) {
			return err
		}
		r.logger.Warn("Upstream call failed", "op", op, "attempt", attempt, "error", err)
		if attempt == r.cfg.UpstreamRetries {
			break
		}
		select {
		case <-ctx.Done():
			return errs.Upstream(ctx.Err(), "%s cancelled", op)
		case <-time.After(r.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (r *Runtime) lock(ctx context.Context, sessionID string) (func(), error) {
	release, err := r.locker.Acquire(ctx, services.LockKey(sessionID), r.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (r *Runtime) load(ctx context.Context, sessionID string) (*combat.Session, error) {
	var s *combat.Session
	err := r.retry(ctx, "load session", func() error {
		var err error
		s, err = r.store.LoadSession(ctx, sessionID)
		return err
	})
	return s, err
}

func (r *Runtime) commit(ctx context.Context, s *combat.Session, res *combat.ActionResult, consumed ...combat.Move) error {
	return r.retry(ctx, "commit session", func() error {
		return r.store.Commit(ctx, s, res, consumed...)
	})
}

// Inspect returns a read-only view of a session. Reads are lock-free.
func (r *Runtime) Inspect(ctx context.Context, sessionID string) (*combat.SessionView, error) {
	s, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	v := s.View()
	return &v, nil
}

// Terminate ends a session early with no winner. Terminating an ended
// session returns its existing summary.
func (r *Runtime) Terminate(ctx context.Context, sessionID string, reason combat.Reason) (combat.ResolutionSummary, error) {
	switch reason {
	case combat.ReasonForfeit, combat.ReasonAdmin, combat.ReasonInternal:
	default:
		return combat.ResolutionSummary{}, errs.Validation("unsupported termination reason %q", reason)
	}
	release, err := r.lock(ctx, sessionID)
	if err != nil {
		return combat.ResolutionSummary{}, err
	}
	defer release()

	s, err := r.load(ctx, sessionID)
	if err != nil {
		return combat.ResolutionSummary{}, err
	}
	if s.Meta.State == combat.StateEnded {
		return s.Meta.Summary(), nil
	}
	// Administrative termination has no winner; a player forfeit that names
	// its side goes through a system move instead.
	return r.finish(ctx, s, reason, "", nil)
}

// finish finalizes s, persists it with res and runs the end-of-session side
// effects.
func (r *Runtime) finish(ctx context.Context, s *combat.Session, reason combat.Reason, winner string,
	res *combat.ActionResult, consumed ...combat.Move) (combat.ResolutionSummary, error) {
	summary := r.resolver.Finalize(s, reason, winner, r.now().Truncate(time.Second))
	if res != nil {
		res.State = s.Meta.State
		res.Ended = true
		res.Winner = summary.Winner
	}
	if err := r.commit(ctx, s, res, consumed...); err != nil {
		return summary, err
	}
	log := r.logger.With("session_id", s.Meta.ID)
	log.Info("Session ended", "reason", summary.Reason, "winner", summary.Winner, "rounds", summary.Rounds)

	if r.rewards != nil && len(summary.Rewards) > 0 {
		err := r.retry(ctx, "write rewards", func() error {
			return r.rewards.ApplyRewards(ctx, s.Meta.ID, summary.Rewards)
		})
		if err != nil {
			log.Error("Failed to write rewards", "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishSessionEnded(ctx, summary); err != nil {
			log.Warn("Failed to publish session end", "error", err)
		}
	}
	return summary, nil
}

// abort logs the full session state and forces it to ended with no winner.
func (r *Runtime) abort(ctx context.Context, s *combat.Session, cause error) {
	r.logger.Error("Session invariant violated, terminating",
		"session_id", s.Meta.ID,
		"error", cause,
		"meta", s.Meta,
		"actors", s.Actors)
	if s.Meta.State == combat.StateEnded {
		return
	}
	if _, err := r.finish(ctx, s, combat.ReasonInternal, "", nil); err != nil {
		r.logger.Error("Failed to terminate session", "session_id", s.Meta.ID, "error", err)
	}
}
