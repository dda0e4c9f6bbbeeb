package actor

import (
	"maps"
	"math"
	"slices"
)

// Stat names read by combat resolution.
const (
	StatDamage     = "damage"
	StatArmor      = "armor"
	StatSpeed      = "speed"
	StatCritChance = "crit_chance" // percent
	StatCritPower  = "crit_power"  // damage multiplier
	StatDodge      = "dodge"       // percent
)

// Stat is one row of the RBC matrix.
//   - Raw: attributes and permanent modifiers
//   - Base: raw plus equipment and passive skills
//   - Computed: base plus active effects
type Stat struct {
	Raw      float64 `json:"raw"`
	Base     float64 `json:"base"`
	Computed float64 `json:"computed"`
}

// StatMatrix maps a stat name to its three layers.
type StatMatrix map[string]Stat

// Get returns the computed value of a stat, zero if absent.
func (m StatMatrix) Get(name string) float64 {
	return m[name].Computed
}

// Base returns the base value of a stat, zero if absent.
func (m StatMatrix) Base(name string) float64 {
	return m[name].Base
}

// AddRaw adds v to the raw layer of a stat.
func (m StatMatrix) AddRaw(name string, v float64) {
	s := m[name]
	s.Raw += v
	m[name] = s
}

// SealBase sets base = raw for every stat. Call before equipment and
// passive contributions are layered on with AddBase.
func (m StatMatrix) SealBase() {
	for k, s := range m {
		s.Base = s.Raw
		m[k] = s
	}
}

// AddBase adds v to the base layer of a stat.
func (m StatMatrix) AddBase(name string, v float64) {
	s := m[name]
	s.Base += v
	m[name] = s
}

// Names returns the stat names in sorted order.
func (m StatMatrix) Names() []string {
	return slices.Sorted(maps.Keys(m))
}

// Clone returns a copy of the matrix.
func (m StatMatrix) Clone() StatMatrix {
	return maps.Clone(m)
}

// Recompute derives the computed layer from base and the effect list.
//
// For each stat: computed = (base + sum of additive deltas) * product of
// (1 + multiplicative deltas). Effects are visited in list order. Stats that
// appear only in effects are added with zero raw and base.
func (m StatMatrix) Recompute(effects []Effect) {
	add := make(map[string]float64)
	mul := make(map[string]float64)
	for _, e := range effects {
		for stat, d := range e.Mutations {
			if _, ok := m[stat]; !ok {
				m[stat] = Stat{}
			}
			if d.Multiplicative {
				f, ok := mul[stat]
				if !ok {
					f = 1
				}
				mul[stat] = f * (1 + d.Value)
			} else {
				add[stat] += d.Value
			}
		}
	}
	for name, s := range m {
		v := s.Base + add[name]
		if f, ok := mul[name]; ok {
			v *= f
		}
		s.Computed = v
		m[name] = s
	}
}

// Consistent reports whether the computed layer matches Recompute(effects).
func (m StatMatrix) Consistent(effects []Effect) bool {
	cp := m.Clone()
	cp.Recompute(effects)
	for name, s := range cp {
		if math.Abs(s.Computed-m[name].Computed) > 1e-9 {
			return false
		}
	}
	return true
}
