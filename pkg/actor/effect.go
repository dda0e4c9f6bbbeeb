package actor

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Control keys understood by the combat core.
const (
	ControlCanAct      = "source_behavior.can_act"
	ControlCanActShort = "can_act"
)

// Delta is one stat mutation. A JSON number is an additive delta; a signed
// string such as "+0.5" or "-0.25" is a multiplicative delta relative to 1
// (so "+0.5" scales the stat by 1.5). "x1.5" is accepted as a literal factor.
type Delta struct {
	Value          float64
	Multiplicative bool
}

// Add returns an additive delta.
func Add(v float64) Delta { return Delta{Value: v} }

// Mul returns a multiplicative delta; Mul(0.5) scales by 1.5.
func Mul(v float64) Delta { return Delta{Value: v, Multiplicative: true} }

func (d Delta) MarshalJSON() ([]byte, error) {
	if d.Multiplicative {
		return json.Marshal(fmt.Sprintf("%+g", d.Value))
	}
	return json.Marshal(d.Value)
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*d = Delta{Value: num}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("delta must be a number or signed string: %w", err)
	}
	parsed, err := ParseDelta(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDelta parses the string encoding of a Delta.
func ParseDelta(s string) (Delta, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Delta{}, fmt.Errorf("empty delta")
	case s[0] == 'x' || s[0] == '*':
		f, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return Delta{}, fmt.Errorf("invalid factor %q: %w", s, err)
		}
		return Mul(f - 1), nil
	case s[0] == '+' || s[0] == '-':
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Delta{}, fmt.Errorf("invalid delta %q: %w", s, err)
		}
		return Mul(f), nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Delta{}, fmt.Errorf("invalid delta %q: %w", s, err)
		}
		return Add(f), nil
	}
}

// Effect is a timed mutation on an actor.
type Effect struct {
	ID        string             `json:"id"`
	Source    string             `json:"source,omitempty"`
	Duration  int                `json:"duration"`
	Power     float64            `json:"power,omitempty"`
	Mutations map[string]Delta   `json:"mutations,omitempty"`
	Tick      map[string]float64 `json:"tick,omitempty"` // hp/energy per tick, scaled by Power
	Control   map[string]bool    `json:"control,omitempty"`
	RemoveOn  []string           `json:"remove_on,omitempty"`
}

// Scale returns the multiplier applied to resource impact.
func (e Effect) Scale() float64 {
	if e.Power == 0 {
		return 1
	}
	return e.Power
}

// BlocksAction reports whether the effect forbids acting.
func (e Effect) BlocksAction() bool {
	if v, ok := e.Control[ControlCanAct]; ok && !v {
		return true
	}
	if v, ok := e.Control[ControlCanActShort]; ok && !v {
		return true
	}
	return false
}

// RemovedBy reports whether the event tag removes this effect early.
func (e Effect) RemovedBy(tag string) bool {
	return slices.Contains(e.RemoveOn, tag)
}

// Clone returns a deep copy.
func (e Effect) Clone() Effect {
	cp := e
	cp.Mutations = maps.Clone(e.Mutations)
	cp.Tick = maps.Clone(e.Tick)
	cp.Control = maps.Clone(e.Control)
	cp.RemoveOn = slices.Clone(e.RemoveOn)
	return cp
}
