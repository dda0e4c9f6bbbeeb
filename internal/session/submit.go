package session

import (
	"context"
	"maps"
	"slices"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// Submit resolves an action pair. A move_id that was already resolved
// returns the stored result without touching the session. A one-sided
// exchange is paired with the AI opponent, with a pending move from the
// other side, or parked until the other side submits.
func (r *Runtime) Submit(ctx context.Context, sessionID string, pair combat.ActionPair) (*combat.ActionResult, error) {
	primary := pair.PrimaryMove
	if primary.MoveID == "" {
		return nil, errs.Validation("move_id is required")
	}
	if primary.CharID == "" {
		return nil, errs.Validation("char_id is required").With("move_id", primary.MoveID)
	}
	log := r.logger.With("session_id", sessionID, "move_id", primary.MoveID, "char_id", primary.CharID)

	release, err := r.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var prior *combat.ActionResult
	err = r.retry(ctx, "load result", func() error {
		var err error
		prior, err = r.store.LoadResult(ctx, sessionID, primary.MoveID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if prior != nil {
		log.Debug("Replaying stored result")
		return prior, nil
	}

	s, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Meta.State != combat.StateActive {
		return nil, errs.Conflict("session %s is %s", sessionID, s.Meta.State).With("session_id", sessionID)
	}

	// Moves answered by this result besides the primary one.
	var consumed []combat.Move
	if pair.PartnerMove != nil && pair.PartnerMove.MoveID != "" {
		consumed = append(consumed, *pair.PartnerMove)
	}
	if pair.Type() == combat.StrategyExchange && pair.PartnerMove == nil && !pair.IsForced && !s.Meta.Paused {
		paired, err := r.resolver.PairWithAI(s, &pair, r.newID())
		if err != nil {
			if errs.IsCode(err, errs.CodeInternal) {
				r.abort(ctx, s, err)
			}
			return nil, err
		}
		if !paired {
			partner, parked, err := r.pairPending(ctx, s, primary)
			if err != nil {
				return nil, err
			}
			if parked != nil {
				log.Debug("Move parked until the other side submits")
				return parked, nil
			}
			pair.PartnerMove = partner
			consumed = append(consumed, *partner)
		}
	}

	work := s.Clone()
	out, err := r.resolver.Resolve(work, pair)
	if err != nil {
		if errs.IsCode(err, errs.CodeInternal) {
			r.abort(ctx, s, err)
		}
		return nil, err
	}
	if err := work.CheckInvariants(); err != nil {
		log.Error("Resolution broke session invariants", "error", err, "meta", work.Meta, "actors", work.Actors)
		r.abort(ctx, s, err)
		return nil, err
	}

	res := &combat.ActionResult{
		SessionID: sessionID,
		MoveID:    primary.MoveID,
		Round:     work.Meta.Round,
		State:     work.Meta.State,
		Events:    out.Events,
	}
	if out.Ended {
		_, err = r.finish(ctx, work, out.Reason, out.Winner, res, consumed...)
	} else {
		err = r.commit(ctx, work, res, consumed...)
	}
	if err != nil {
		log.Error("Failed to persist resolution", "error", err)
		r.abort(ctx, s, err)
		return nil, err
	}
	log.Debug("Move resolved", "events", len(res.Events), "round", res.Round)

	if r.publisher != nil {
		if err := r.publisher.PublishActionResolved(ctx, res); err != nil {
			log.Warn("Failed to publish action result", "error", err)
		}
	}
	return res, nil
}

// pairPending matches a one-sided exchange with a move parked by the other
// side. When none is waiting the move is parked and a pending result is
// returned instead.
func (r *Runtime) pairPending(ctx context.Context, s *combat.Session, m combat.Move) (*combat.Move, *combat.ActionResult, error) {
	sid := s.Meta.ID
	var pending map[string]combat.Move
	err := r.retry(ctx, "load pending", func() error {
		var err error
		pending, err = r.store.Pending(ctx, sid)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	parkedResult := &combat.ActionResult{
		SessionID: sid,
		MoveID:    m.MoveID,
		Round:     s.Meta.Round,
		State:     s.Meta.State,
		Events:    []combat.Event{},
		Pending:   true,
	}
	if own, ok := pending[m.CharID]; ok && own.MoveID == m.MoveID {
		return nil, parkedResult, nil
	}

	team, ok := s.Meta.TeamOf(m.CharID)
	if !ok {
		return nil, nil, errs.Validation("actor %s is not in session %s", m.CharID, sid).With("move_id", m.MoveID)
	}
	for _, charID := range slices.Sorted(maps.Keys(pending)) {
		other, _ := s.Meta.TeamOf(charID)
		if charID == m.CharID || other == team {
			continue
		}
		pm := pending[charID]
		return &pm, nil, nil
	}

	if err := r.checkParkable(s, m); err != nil {
		return nil, nil, err
	}
	err = r.retry(ctx, "park move", func() error {
		return r.store.SetPending(ctx, sid, m)
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, parkedResult, nil
}

// checkParkable rejects moves that could never resolve once a partner
// arrives.
func (r *Runtime) checkParkable(s *combat.Session, m combat.Move) error {
	payload, err := combat.DecodePayload(m)
	if err != nil {
		return err
	}
	a := s.Actors[m.CharID]
	if a == nil || a.Dead() {
		return errs.Validation("actor %s cannot act", m.CharID).With("move_id", m.MoveID)
	}
	if p, ok := payload.(*combat.AbilityPayload); ok && !a.Loadout.Usable(p.AbilityID) {
		return errs.Validation("ability %s is not usable by %s", p.AbilityID, m.CharID).With("move_id", m.MoveID)
	}
	return nil
}
