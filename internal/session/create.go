package session

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/character"
	"github.com/jwebster45206/combat-engine/pkg/combat"
	"github.com/jwebster45206/combat-engine/pkg/hydrator"
)

func newUUID() string {
	return uuid.NewString()
}

// Team tags used by the built-in session shapes.
const (
	TeamRed      = "red"
	TeamBlue     = "blue"
	TeamPlayers  = "players"
	TeamMonsters = "monsters"
)

// Participant is one actor to put into a session. Exactly one of CharID,
// MonsterID or ShadowOf is set.
type Participant struct {
	CharID    string
	MonsterID string
	ShadowOf  string
	Team      string
	AI        bool
}

func (p Participant) sources() int {
	n := 0
	for _, v := range []string{p.CharID, p.MonsterID, p.ShadowOf} {
		if v != "" {
			n++
		}
	}
	return n
}

// Spec describes a session to create.
type Spec struct {
	SessionID    string
	BattleType   combat.BattleType
	Mode         combat.Mode
	LocationID   string
	IsShadow     bool
	Participants []Participant
}

func (sp Spec) validate() error {
	teams := map[string]bool{}
	for i, p := range sp.Participants {
		if p.sources() != 1 {
			return errs.Validation("participant %d must name exactly one of char_id, monster_id, shadow_of", i)
		}
		if p.Team == "" {
			return errs.Validation("participant %d has no team", i)
		}
		teams[p.Team] = true
	}
	if len(teams) < 2 {
		return errs.Validation("a session needs at least two teams")
	}
	switch sp.BattleType {
	case combat.BattlePvE, combat.BattlePvP:
	default:
		return errs.Validation("unknown battle type %q", sp.BattleType)
	}
	return nil
}

// Create assembles and hydrates every participant and stores the new
// session. It can be cancelled through ctx until the session is active.
func (r *Runtime) Create(ctx context.Context, sp Spec) (string, error) {
	if err := sp.validate(); err != nil {
		return "", err
	}
	if sp.SessionID == "" {
		sp.SessionID = r.newID()
	}
	if sp.Mode == "" {
		sp.Mode = combat.Mode1v1
	}
	log := r.logger.With("session_id", sp.SessionID)

	meta := &combat.SessionMeta{
		ID:         sp.SessionID,
		StartTime:  r.now().Truncate(time.Second).UTC(),
		Teams:      map[string][]string{},
		ActorsInfo: map[string]actor.Kind{},
		DeadActors: []string{},
		Rewards:    map[string]combat.Reward{},
		BattleType: sp.BattleType,
		Mode:       sp.Mode,
		IsPvE:      sp.BattleType == combat.BattlePvE,
		LocationID: sp.LocationID,
		State:      combat.StateInitializing,
		IsShadow:   sp.IsShadow,
	}

	actors, err := r.hydrateAll(ctx, sp.Participants)
	if err != nil {
		log.Warn("Session creation failed", "error", err)
		return "", err
	}
	s := &combat.Session{Meta: meta, Actors: map[string]*actor.Actor{}}
	for _, a := range actors {
		if _, dup := s.Actors[a.ID]; dup {
			return "", errs.Validation("actor %s appears twice", a.ID)
		}
		s.Actors[a.ID] = a
		meta.Teams[a.Team] = append(meta.Teams[a.Team], a.ID)
		meta.ActorsInfo[a.ID] = a.Kind
	}
	for _, team := range slices.Collect(maps.Keys(meta.Teams)) {
		slices.Sort(meta.Teams[team])
	}

	if err := ctx.Err(); err != nil {
		return "", errs.Conflict("session creation cancelled: %v", err)
	}
	if err := meta.Transition(combat.StateActive); err != nil {
		return "", err
	}
	if err := s.CheckInvariants(); err != nil {
		log.Error("New session violates invariants", "error", err, "actors", s.Actors)
		return "", err
	}
	err = r.retry(ctx, "create session", func() error {
		return r.store.CreateSession(ctx, s)
	})
	if err != nil {
		return "", err
	}
	log.Info("Session created", "battle_type", meta.BattleType, "mode", meta.Mode, "actors", len(s.Actors))

	if r.publisher != nil {
		if err := r.publisher.PublishSessionCreated(ctx, meta); err != nil {
			log.Warn("Failed to publish session creation", "error", err)
		}
	}
	return sp.SessionID, nil
}

// hydrateAll builds participants concurrently, keeping their order.
func (r *Runtime) hydrateAll(ctx context.Context, ps []Participant) ([]*actor.Actor, error) {
	out := make([]*actor.Actor, len(ps))
	g, gctx := errgroup.WithContext(ctx)
	monsters := 0
	for i, p := range ps {
		var entityID string
		if p.MonsterID != "" {
			monsters++
			entityID = fmt.Sprintf("monster-%d-%s", monsters, p.MonsterID)
		}
		g.Go(func() error {
			a, err := r.hydrateOne(gctx, p, entityID)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runtime) hydrateOne(ctx context.Context, p Participant, entityID string) (*actor.Actor, error) {
	switch {
	case p.MonsterID != "":
		a, err := r.hydrator.HydrateMonster(p.MonsterID, hydrator.Meta{
			EntityID: entityID, Kind: actor.KindMonster, Team: p.Team, AI: true,
		})
		if err != nil {
			return nil, errs.Validation("monster %s: %v", p.MonsterID, err)
		}
		return a, nil

	case p.ShadowOf != "":
		snap, err := r.assembler.Assemble(ctx, p.ShadowOf, character.ScopeCombats)
		if err != nil {
			return nil, err
		}
		shadowID := "shadow-" + p.ShadowOf
		a, err := r.hydrator.Hydrate(hydrator.Shadow(snap, shadowID), hydrator.Meta{
			EntityID: shadowID, Kind: actor.KindMonster, Team: p.Team, AI: true,
		})
		if err != nil {
			return nil, errs.Validation("shadow of %s: %v", p.ShadowOf, err).With("char_id", p.ShadowOf)
		}
		return a, nil

	default:
		snap, err := r.assembler.Assemble(ctx, p.CharID, character.ScopeCombats)
		if err != nil {
			return nil, err
		}
		a, err := r.hydrator.Hydrate(snap, hydrator.Meta{
			EntityID: p.CharID, Kind: actor.KindPlayer, Team: p.Team, AI: p.AI,
		})
		if err != nil {
			return nil, errs.Validation("character %s: %v", p.CharID, err).With("char_id", p.CharID)
		}
		return a, nil
	}
}

// StartPvE opens a fight between a character and a monster.
func (r *Runtime) StartPvE(ctx context.Context, charID, monsterID, locationID string) (string, error) {
	return r.Create(ctx, Spec{
		BattleType: combat.BattlePvE,
		Mode:       combat.Mode1v1,
		LocationID: locationID,
		Participants: []Participant{
			{CharID: charID, Team: TeamPlayers},
			{MonsterID: monsterID, Team: TeamMonsters},
		},
	})
}

func modeFor(matchType string) combat.Mode {
	switch combat.Mode(matchType) {
	case combat.Mode1v1, combat.ModeGroup, combat.ModeDungeon:
		return combat.Mode(matchType)
	}
	return combat.Mode1v1
}

// CreateMatch opens a PvP session between two queued characters.
func (r *Runtime) CreateMatch(ctx context.Context, matchType, charA, charB string) (string, error) {
	return r.Create(ctx, Spec{
		BattleType: combat.BattlePvP,
		Mode:       modeFor(matchType),
		Participants: []Participant{
			{CharID: charA, Team: TeamRed},
			{CharID: charB, Team: TeamBlue},
		},
	})
}

// CreateShadow opens a one-sided session against an AI copy of the
// character.
func (r *Runtime) CreateShadow(ctx context.Context, matchType, charID string) (string, error) {
	return r.Create(ctx, Spec{
		BattleType: combat.BattlePvP,
		Mode:       modeFor(matchType),
		IsShadow:   true,
		Participants: []Participant{
			{CharID: charID, Team: TeamRed},
			{ShadowOf: charID, Team: TeamBlue},
		},
	})
}

// GearScore reports a character's gear score from its inventory facet.
func (r *Runtime) GearScore(ctx context.Context, charID string) (int, error) {
	snap, err := r.assembler.Assemble(ctx, charID, character.ScopeInventory)
	if err != nil {
		return 0, err
	}
	return snap.GearScore(), nil
}
