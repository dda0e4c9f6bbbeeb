// Package actor holds the in-session combat entity: its RBC stat matrix,
// vitals, loadout and timed effects.
package actor

import (
	"slices"
)

// Kind is the entity type of an actor.
type Kind string

const (
	KindPlayer  Kind = "player"
	KindMonster Kind = "monster"
)

// Status is the per-actor combat state.
type Status string

const (
	StatusAlive   Status = "alive"
	StatusStunned Status = "stunned"
	StatusDead    Status = "dead"
)

// HPFull is the sentinel for "fill to max on hydration".
const HPFull = -1

// Loadout lists what the actor can use. Reserve holds known skills that are
// not slotted; a switch moves one of them into Skills.
type Loadout struct {
	Belt      []string `json:"belt"`
	Skills    []string `json:"skills"`
	Abilities []string `json:"abilities"`
	Reserve   []string `json:"reserve,omitempty"`
}

// Usable reports whether an ability is slotted in Skills or Abilities.
func (l Loadout) Usable(abilityID string) bool {
	return slices.Contains(l.Skills, abilityID) || slices.Contains(l.Abilities, abilityID)
}

// Clone returns a deep copy.
func (l Loadout) Clone() Loadout {
	return Loadout{
		Belt:      slices.Clone(l.Belt),
		Skills:    slices.Clone(l.Skills),
		Abilities: slices.Clone(l.Abilities),
		Reserve:   slices.Clone(l.Reserve),
	}
}

// Actor is an entity in an active session. It is mutated only by the
// session runtime.
type Actor struct {
	ID            string     `json:"entity_id"`
	Kind          Kind       `json:"type"`
	Name          string     `json:"name"`
	Team          string     `json:"team"`
	AI            bool       `json:"ai,omitempty"`
	GearScore     int        `json:"gear_score,omitempty"`
	Stats         StatMatrix `json:"stats"`
	MaxHP         int        `json:"max_hp"`
	MaxEnergy     int        `json:"max_energy"`
	HP            int        `json:"hp_current"`
	Energy        int        `json:"energy_current"`
	Loadout       Loadout    `json:"loadout"`
	Targets       []string   `json:"targets"`
	SwitchCharges int        `json:"switch_charges"`
	Effects       []Effect   `json:"effects"`
}

// Dead reports whether the actor has no hit points left.
func (a *Actor) Dead() bool {
	return a.HP <= 0
}

// CanAct reports whether no active effect blocks acting.
func (a *Actor) CanAct() bool {
	for _, e := range a.Effects {
		if e.BlocksAction() {
			return false
		}
	}
	return true
}

// Status returns the per-actor state. Dead is absorbing.
func (a *Actor) Status() Status {
	switch {
	case a.Dead():
		return StatusDead
	case !a.CanAct():
		return StatusStunned
	default:
		return StatusAlive
	}
}

// Recompute refreshes the computed stat layer from the current effects.
func (a *Actor) Recompute() {
	if a.Stats == nil {
		a.Stats = StatMatrix{}
	}
	a.Stats.Recompute(a.Effects)
}

// SetEnergy clamps v into [0, MaxEnergy].
func (a *Actor) SetEnergy(v int) {
	a.Energy = clamp(v, 0, a.MaxEnergy)
}

// AddEffect appends an effect, preserving insertion order. An effect with
// the same ID from the same source is refreshed in place.
func (a *Actor) AddEffect(e Effect) {
	for i, cur := range a.Effects {
		if cur.ID == e.ID && cur.Source == e.Source {
			a.Effects[i] = e
			return
		}
	}
	a.Effects = append(a.Effects, e)
}

// RemoveEffectsOn drops every effect removed by the event tag and returns
// the removed effects in order.
func (a *Actor) RemoveEffectsOn(tag string) []Effect {
	var removed []Effect
	kept := a.Effects[:0]
	for _, e := range a.Effects {
		if e.RemovedBy(tag) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	a.Effects = kept
	return removed
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	cp := *a
	cp.Stats = a.Stats.Clone()
	cp.Loadout = a.Loadout.Clone()
	cp.Targets = slices.Clone(a.Targets)
	cp.Effects = make([]Effect, len(a.Effects))
	for i, e := range a.Effects {
		cp.Effects[i] = e.Clone()
	}
	return &cp
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
