package combat

import (
	"maps"
	"slices"
	"sort"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
)

// State is the per-session lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateResolving    State = "resolving"
	StateEnded        State = "ended"
)

// validTransitions defines the legal session transitions. active -> ended is
// the forced path taken on internal errors.
var validTransitions = map[State]map[State]bool{
	StateInitializing: {StateActive: true, StateEnded: true},
	StateActive:       {StateResolving: true, StateEnded: true},
	StateResolving:    {StateEnded: true},
}

// IsValidTransition checks if a state transition is legal.
func IsValidTransition(from, to State) bool {
	return validTransitions[from][to]
}

// Transition moves the session to the target state.
func (m *SessionMeta) Transition(to State) error {
	if !IsValidTransition(m.State, to) {
		return errs.Conflict("session %s cannot go from %s to %s", m.ID, m.State, to).With("session_id", m.ID)
	}
	m.State = to
	m.Active = to == StateActive || to == StateResolving
	return nil
}

// Session is the full authoritative state of one fight.
type Session struct {
	Meta   *SessionMeta            `json:"meta"`
	Actors map[string]*actor.Actor `json:"actors"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	meta := *s.Meta
	meta.Teams = make(map[string][]string, len(s.Meta.Teams))
	for k, v := range s.Meta.Teams {
		meta.Teams[k] = slices.Clone(v)
	}
	meta.ActorsInfo = maps.Clone(s.Meta.ActorsInfo)
	meta.DeadActors = slices.Clone(s.Meta.DeadActors)
	meta.Rewards = maps.Clone(s.Meta.Rewards)

	actors := make(map[string]*actor.Actor, len(s.Actors))
	for id, a := range s.Actors {
		actors[id] = a.Clone()
	}
	return &Session{Meta: &meta, Actors: actors}
}

// ActorIDs returns all actor IDs in ascending order.
func (s *Session) ActorIDs() []string {
	return slices.Sorted(maps.Keys(s.Actors))
}

// TeamNames returns the team tags in ascending order.
func (s *Session) TeamNames() []string {
	return slices.Sorted(maps.Keys(s.Meta.Teams))
}

// Opponents returns the living actors not on the given team, by ID.
func (s *Session) Opponents(team string) []*actor.Actor {
	var out []*actor.Actor
	for _, id := range s.ActorIDs() {
		a := s.Actors[id]
		if a.Team != team && !a.Dead() {
			out = append(out, a)
		}
	}
	return out
}

// AliveTeams returns the teams with at least one living actor.
func (s *Session) AliveTeams() []string {
	var out []string
	for _, team := range s.TeamNames() {
		for _, id := range s.Meta.Teams[team] {
			if a, ok := s.Actors[id]; ok && !a.Dead() {
				out = append(out, team)
				break
			}
		}
	}
	return out
}

// View builds the read model. Actors are ordered by team then ID.
func (s *Session) View() SessionView {
	v := SessionView{
		Meta:     *s.Meta,
		Statuses: make(map[string]actor.Status, len(s.Actors)),
	}
	for _, a := range s.Actors {
		v.Actors = append(v.Actors, a)
		v.Statuses[a.ID] = a.Status()
	}
	sort.Slice(v.Actors, func(i, j int) bool {
		if v.Actors[i].Team != v.Actors[j].Team {
			return v.Actors[i].Team < v.Actors[j].Team
		}
		return v.Actors[i].ID < v.Actors[j].ID
	})
	return v
}

// CheckInvariants reports the first violated session invariant.
func (s *Session) CheckInvariants() error {
	dead := make(map[string]bool, len(s.Meta.DeadActors))
	for _, id := range s.Meta.DeadActors {
		dead[id] = true
	}
	for _, id := range s.ActorIDs() {
		a := s.Actors[id]
		if a.HP < 0 || a.HP > a.MaxHP {
			return errs.Internal(nil, "actor %s hp %d outside [0, %d]", id, a.HP, a.MaxHP)
		}
		if a.Energy < 0 || a.Energy > a.MaxEnergy {
			return errs.Internal(nil, "actor %s energy %d outside [0, %d]", id, a.Energy, a.MaxEnergy)
		}
		if dead[id] != (a.HP == 0) {
			return errs.Internal(nil, "actor %s dead set mismatch (hp %d)", id, a.HP)
		}
		if !a.Stats.Consistent(a.Effects) {
			return errs.Internal(nil, "actor %s computed stats out of date", id)
		}
	}
	if s.Meta.State == StateActive && len(s.AliveTeams()) < len(s.Meta.Teams) {
		return errs.Internal(nil, "active session %s has an eliminated team", s.Meta.ID)
	}
	return nil
}
