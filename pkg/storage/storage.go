package storage

import (
	"context"

	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// Storage defines the key-value operations the Session Runtime needs.
// Implementations return errs NOT_FOUND for unknown sessions and
// UPSTREAM_UNAVAILABLE when the store fails.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Session operations. CreateSession fails with CONFLICT_STATE when the
	// session already exists.
	CreateSession(ctx context.Context, s *combat.Session) error
	LoadSession(ctx context.Context, sessionID string) (*combat.Session, error)
	LoadMeta(ctx context.Context, sessionID string) (*combat.SessionMeta, error)

	// Commit writes meta and every actor blob in one transaction. A non-nil
	// result is stored under its move_id and the move_id of every consumed
	// move. A consumed move that is still parked for its character is
	// unparked; other parked moves are left alone.
	Commit(ctx context.Context, s *combat.Session, result *combat.ActionResult, consumed ...combat.Move) error

	// Idempotency. LoadResult returns nil, nil when no result is stored.
	LoadResult(ctx context.Context, sessionID, moveID string) (*combat.ActionResult, error)

	// Pending one-sided exchange moves, one per acting character.
	SetPending(ctx context.Context, sessionID string, m combat.Move) error
	Pending(ctx context.Context, sessionID string) (map[string]combat.Move, error)
}
