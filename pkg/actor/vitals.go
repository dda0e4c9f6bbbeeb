package actor

import (
	"github.com/jwebster45206/d20"
)

// Sheet returns a d20 sheet carrying the actor's HP pool. It fails when the
// actor has no positive max HP.
func (a *Actor) Sheet() (*d20.Actor, error) {
	s, err := d20.NewActor(a.ID).WithHP(a.MaxHP).Build()
	if err != nil {
		return nil, err
	}
	if a.HP < a.MaxHP {
		s.SubHP(a.MaxHP - a.HP)
	}
	return s, nil
}

// withSheet runs fn against the actor's sheet and copies the resulting HP
// back. An actor without a valid pool is left at 0 HP.
func (a *Actor) withSheet(fn func(s *d20.Actor)) {
	s, err := a.Sheet()
	if err != nil {
		a.HP = 0
		return
	}
	fn(s)
	a.HP = s.HP()
}

// SetHP moves HP to v, bounded by [0, MaxHP].
func (a *Actor) SetHP(v int) {
	a.withSheet(func(s *d20.Actor) {
		s.ResetHP()
		if v < s.MaxHP() {
			s.SubHP(s.MaxHP() - v)
		}
	})
}

// Damage removes up to n HP and returns how much was lost.
func (a *Actor) Damage(n int) int {
	if n <= 0 {
		return 0
	}
	before := a.HP
	a.withSheet(func(s *d20.Actor) { s.SubHP(n) })
	return before - a.HP
}

// AdjustHP applies a signed HP change and returns the change that landed.
func (a *Actor) AdjustHP(d int) int {
	before := a.HP
	switch {
	case d < 0:
		a.withSheet(func(s *d20.Actor) { s.SubHP(-d) })
	case d > 0:
		a.withSheet(func(s *d20.Actor) { s.AddHP(d) })
	default:
		return 0
	}
	return a.HP - before
}
