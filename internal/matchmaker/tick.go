package matchmaker

import (
	"context"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/internal/services/queue"
)

// Tick scans one match type. Entries are visited oldest first; each is
// paired with the closest gear score within tolerance, ties going to the
// earlier joiner. An entry left alone past the shadow timeout gets a shadow
// session. Returns the number of sessions created. A scan already running
// elsewhere makes Tick a no-op.
//
// Entries are claimed under the queue lock and sessions are created after
// it is released, so a slow create never outlives the lock.
func (m *Matchmaker) Tick(ctx context.Context, matchType string) (int, error) {
	if err := m.checkMatchType(matchType); err != nil {
		return 0, err
	}
	release, ok, err := m.locker.TryAcquire(ctx, queue.LockKey(matchType), m.cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	defer release()

	pairs, shadows, claimErr := m.claim(ctx, matchType)
	release()

	created := 0
	for _, p := range pairs {
		err := m.pair(ctx, p[0], p[1])
		if err == nil {
			created++
			continue
		}
		m.logger.Error("Match creation failed", "match_type", matchType,
			"char_a", p[0].CharID, "char_b", p[1].CharID, "error", err)
		for _, e := range p {
			if m.overdue(e) && !blamed(err, e.CharID) {
				shadows = append(shadows, e)
				continue
			}
			m.unclaim(ctx, e, err)
		}
	}
	for _, e := range shadows {
		if err := m.shadow(ctx, e); err != nil {
			m.logger.Error("Shadow creation failed", "match_type", matchType,
				"char_id", e.CharID, "error", err)
			continue
		}
		created++
	}
	return created, claimErr
}

// claim plans the scan and moves every chosen entry to creating.
func (m *Matchmaker) claim(ctx context.Context, matchType string) ([][2]queue.Entry, []queue.Entry, error) {
	waiting, err := m.queue.Waiting(ctx, matchType)
	if err != nil {
		return nil, nil, err
	}

	var pairs [][2]queue.Entry
	var shadows []queue.Entry
	used := make([]bool, len(waiting))
	for i := range waiting {
		if used[i] {
			continue
		}
		best, bestDiff := -1, 0
		for j := i + 1; j < len(waiting); j++ {
			if used[j] {
				continue
			}
			diff := abs(waiting[i].GS - waiting[j].GS)
			if diff > m.cfg.Tolerance {
				continue
			}
			if best < 0 || diff < bestDiff {
				best, bestDiff = j, diff
			}
		}

		switch {
		case best >= 0:
			a, b := waiting[i], waiting[best]
			err := m.setStatus(ctx, queue.StatusPaired, &a, &b)
			if err == nil {
				err = m.setStatus(ctx, queue.StatusCreating, &a, &b)
			}
			if err != nil {
				m.unclaim(ctx, a, err)
				m.unclaim(ctx, b, err)
				return pairs, shadows, err
			}
			used[i], used[best] = true, true
			pairs = append(pairs, [2]queue.Entry{a, b})
		case m.overdue(waiting[i]):
			e := waiting[i]
			if err := m.setStatus(ctx, queue.StatusCreating, &e); err != nil {
				return pairs, shadows, err
			}
			used[i] = true
			shadows = append(shadows, e)
		}
	}
	return pairs, shadows, nil
}

func (m *Matchmaker) overdue(e queue.Entry) bool {
	return m.cfg.ShadowTimeout > 0 && m.now().Sub(e.JoinedAt) > m.cfg.ShadowTimeout
}

// blamed reports whether err is a permanent failure caused by charID.
func blamed(err error, charID string) bool {
	switch errs.GetCode(err) {
	case errs.CodeNotFound, errs.CodeValidationFailed:
		return errs.GetMetadata(err)["char_id"] == charID
	}
	return false
}

// unclaim puts an entry back in the queue after a failed create, or expires
// it when the failure was its own and cannot heal.
func (m *Matchmaker) unclaim(ctx context.Context, e queue.Entry, cause error) {
	status := queue.StatusQueued
	if blamed(cause, e.CharID) {
		status = queue.StatusExpired
		m.logger.Warn("Expiring queue entry", "match_type", e.MatchType, "char_id", e.CharID, "error", cause)
	}
	if err := m.setStatus(ctx, status, &e); err != nil {
		m.logger.Error("Failed to release queue entry", "char_id", e.CharID, "status", status, "error", err)
	}
}

// TickAll scans every configured match type.
func (m *Matchmaker) TickAll(ctx context.Context) int {
	total := 0
	for _, mt := range m.cfg.MatchTypes {
		n, err := m.Tick(ctx, mt)
		if err != nil {
			m.logger.Error("Queue scan failed", "match_type", mt, "error", err)
			continue
		}
		total += n
	}
	return total
}

func (m *Matchmaker) setStatus(ctx context.Context, status queue.Status, entries ...*queue.Entry) error {
	for _, e := range entries {
		e.Status = status
		if err := m.queue.Update(ctx, *e); err != nil {
			return err
		}
	}
	return nil
}

// pair creates the session for two claimed entries.
func (m *Matchmaker) pair(ctx context.Context, a, b queue.Entry) error {
	sid, err := m.sessions.CreateMatch(ctx, a.MatchType, a.CharID, b.CharID)
	if err != nil {
		return err
	}
	a.SessionID, b.SessionID = sid, sid
	if err := m.setStatus(ctx, queue.StatusCreated, &a, &b); err != nil {
		// The session exists; requeueing would start a second one.
		m.logger.Error("Failed to record match", "session_id", sid, "error", err)
	}
	m.logger.Info("Match created", "match_type", a.MatchType, "session_id", sid,
		"char_a", a.CharID, "char_b", b.CharID)
	return nil
}

// shadow creates a shadow session for a claimed entry. A failure expires
// the entry.
func (m *Matchmaker) shadow(ctx context.Context, e queue.Entry) error {
	sid, err := m.sessions.CreateShadow(ctx, e.MatchType, e.CharID)
	if err != nil {
		if rerr := m.setStatus(ctx, queue.StatusExpired, &e); rerr != nil {
			m.logger.Error("Failed to expire entry", "error", rerr)
		}
		return err
	}
	e.SessionID = sid
	e.IsShadow = true
	if err := m.setStatus(ctx, queue.StatusShadowCreated, &e); err != nil {
		m.logger.Error("Failed to record shadow session", "session_id", sid, "error", err)
	}
	m.logger.Info("Shadow session created", "match_type", e.MatchType, "session_id", sid, "char_id", e.CharID)
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
