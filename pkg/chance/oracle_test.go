package chance

import (
	"math"
	"testing"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckChance_Boundaries(t *testing.T) {
	o := NewSeeded(1)

	assert.False(t, o.CheckChance(0), "0 is never")
	assert.False(t, o.CheckChance(-5), "negative is never")
	assert.True(t, o.CheckChance(1.0), "1.0 is certain")
	assert.True(t, o.CheckChance(100), "100 percent is certain")
	assert.True(t, o.CheckChance(250), "above 100 percent is certain")
	assert.False(t, o.CheckChance(math.NaN()), "NaN is never")
	assert.False(t, o.Probability(math.NaN()))
	assert.False(t, o.Percent(math.NaN()))
}

func TestCheckChance_PercentJustAboveOne(t *testing.T) {
	// 1.5 reads as 1.5 percent, not as a certain probability.
	low := NewWithSource(fixedSource{f: 0.0149})
	high := NewWithSource(fixedSource{f: 0.0151})
	assert.True(t, low.CheckChance(1.5))
	assert.False(t, high.CheckChance(1.5))

	// 100 is certain without consuming a draw.
	assert.True(t, NewWithSource(fixedSource{f: 0.9999}).CheckChance(100))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{0.45, 0.45},
		{1, 1},
		{45, 0.45},
		{45.0, 0.45},
		{100, 1},
		{1.5, 0.015},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Normalize(tt.in), 1e-9, "Normalize(%v)", tt.in)
	}
}

func TestProbability_Distribution(t *testing.T) {
	o := NewSeeded(42)
	hits := 0
	const n = 20000
	for i := 0; i < n; i++ {
		if o.Percent(30) {
			hits++
		}
	}
	ratio := float64(hits) / n
	assert.InDelta(t, 0.30, ratio, 0.02)
}

func TestSeededOracle_IsDeterministic(t *testing.T) {
	a := NewSeeded(7)
	b := NewSeeded(7)
	for i := 0; i < 100; i++ {
		x, err := a.RandomRange(1, 1000)
		require.NoError(t, err)
		y, err := b.RandomRange(1, 1000)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestRandomRange(t *testing.T) {
	o := NewSeeded(3)

	t.Run("degenerate range returns the bound", func(t *testing.T) {
		v, err := o.RandomRange(5, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})

	t.Run("inclusive bounds", func(t *testing.T) {
		seen := map[int]bool{}
		for i := 0; i < 500; i++ {
			v, err := o.RandomRange(-1, 1)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, -1)
			assert.LessOrEqual(t, v, 1)
			seen[v] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("full int range", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			_, err := o.RandomRange(math.MinInt, math.MaxInt)
			require.NoError(t, err)
		}
		v, err := NewWithSource(fixedSource{}).RandomRange(math.MinInt, math.MaxInt)
		require.NoError(t, err)
		assert.Equal(t, math.MaxInt, v)
	})

	t.Run("wide range keeps bounds", func(t *testing.T) {
		v, err := NewWithSource(fixedSource{}).RandomRange(-10, math.MaxInt)
		require.NoError(t, err)
		assert.Equal(t, math.MaxInt, v)
		for i := 0; i < 200; i++ {
			v, err := o.RandomRange(math.MaxInt-2, math.MaxInt)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, math.MaxInt-2)
		}
	})

	t.Run("inverted bounds", func(t *testing.T) {
		_, err := o.RandomRange(2, 1)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
	})
}

func TestWeightedChoice(t *testing.T) {
	o := NewSeeded(9)

	t.Run("empty", func(t *testing.T) {
		_, err := WeightedChoice[string](o, nil)
		assert.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
	})

	t.Run("all zero", func(t *testing.T) {
		_, err := WeightedChoice(o, []Weighted[string]{{"a", 0}, {"b", 0}})
		assert.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
	})

	t.Run("single positive weight always wins", func(t *testing.T) {
		items := []Weighted[string]{{"a", 0}, {"b", 3}, {"c", 0}}
		for i := 0; i < 50; i++ {
			v, err := WeightedChoice(o, items)
			require.NoError(t, err)
			assert.Equal(t, "b", v)
		}
	})

	t.Run("rough proportions", func(t *testing.T) {
		items := []Weighted[string]{{"a", 1}, {"b", 3}}
		counts := map[string]int{}
		for i := 0; i < 8000; i++ {
			v, err := WeightedChoice(o, items)
			require.NoError(t, err)
			counts[v]++
		}
		assert.InDelta(t, 0.75, float64(counts["b"])/8000, 0.03)
	})
}

type fixedSource struct{ f float64 }

func (s fixedSource) Float64() float64         { return s.f }
func (s fixedSource) Uint64() uint64           { return math.MaxUint64 }
func (s fixedSource) Uint64N(n uint64) uint64 { return n - 1 }

func TestWeightedChoice_LastKeyFallback(t *testing.T) {
	// A source returning the open upper bound exercises the fallback.
	o := NewWithSource(fixedSource{f: 1.0})
	v, err := WeightedChoice(o, []Weighted[int]{{1, 1}, {2, 1}, {3, 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
