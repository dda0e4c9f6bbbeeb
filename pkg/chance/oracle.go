// Package chance is the single randomness primitive of the combat core.
//
// Every draw goes through an Oracle built around one injected source. Tests
// build the Oracle with NewSeeded so that whole fights replay identically.
package chance

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/jwebster45206/combat-engine/internal/errs"
)

// Source is the subset of *rand.Rand the Oracle draws from.
type Source interface {
	Float64() float64
	Uint64() uint64
	Uint64N(n uint64) uint64
}

// Oracle draws uniform values, weighted choices and inclusive ranges.
// It is safe for concurrent use.
type Oracle struct {
	mu  sync.Mutex
	src Source
}

// New returns an Oracle seeded from crypto/rand.
func New() (*Oracle, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeeded(seed), nil
}

// NewSeeded returns a deterministic Oracle.
func NewSeeded(seed uint64) *Oracle {
	return NewWithSource(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewWithSource wraps an arbitrary source.
func NewWithSource(src Source) *Oracle {
	return &Oracle{src: src}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (o *Oracle) float() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.src.Float64()
}

// Probability returns true with probability p, p in [0, 1].
// p <= 0 is always false and p >= 1 is always true; neither consumes a draw.
func (o *Oracle) Probability(p float64) bool {
	if math.IsNaN(p) || p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return o.float() < p
}

// Percent returns true with probability p/100.
func (o *Oracle) Percent(p float64) bool {
	return o.Probability(p / 100)
}

// CheckChance accepts either a probability or a percent. Values above 1 are
// read as percents, everything else as a probability, so 0.45 and 45 mean
// the same thing and 1.0 is certain.
//
// Deprecated: call Probability or Percent so the unit is explicit.
func (o *Oracle) CheckChance(p float64) bool {
	return o.Probability(Normalize(p))
}

// Normalize converts a CheckChance argument to a probability.
func Normalize(p float64) float64 {
	if p > 1 {
		return p / 100
	}
	return p
}

// Weighted pairs a value with its weight. Slices of Weighted keep insertion
// order, which is the tie-break order for WeightedChoice.
type Weighted[T any] struct {
	Value  T
	Weight float64
}

// WeightedChoice draws uniformly in [0, total) and walks the items in order.
// It fails with INVALID_ARGUMENT when there are no items or the total weight
// is not positive. Negative weights count as zero.
func WeightedChoice[T any](o *Oracle, items []Weighted[T]) (T, error) {
	var zero T
	total := 0.0
	for _, it := range items {
		if it.Weight > 0 {
			total += it.Weight
		}
	}
	if len(items) == 0 || total <= 0 {
		return zero, errs.InvalidArgument("weighted choice requires a positive total weight")
	}

	r := o.float() * total
	acc := 0.0
	last := -1
	for i, it := range items {
		if it.Weight <= 0 {
			continue
		}
		last = i
		acc += it.Weight
		if r < acc {
			return it.Value, nil
		}
	}
	// floating-point edge: r landed on total
	return items[last].Value, nil
}

// RandomRange returns an integer in [lo, hi] inclusive.
func (o *Oracle) RandomRange(lo, hi int) (int, error) {
	if lo > hi {
		return 0, errs.InvalidArgument("random range lower bound %d exceeds upper bound %d", lo, hi)
	}
	if lo == hi {
		return lo, nil
	}
	// span is computed in uint64 so the full int range does not overflow.
	span := uint64(hi) - uint64(lo)
	o.mu.Lock()
	defer o.mu.Unlock()
	var d uint64
	if span == math.MaxUint64 {
		d = o.src.Uint64()
	} else {
		d = o.src.Uint64N(span + 1)
	}
	return int(uint64(lo) + d), nil
}
