package actor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelta_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Delta
	}{
		{"number is additive", `5`, Add(5)},
		{"negative number is additive", `-2.5`, Add(-2.5)},
		{"signed string is multiplicative", `"+0.5"`, Mul(0.5)},
		{"negative signed string", `"-0.25"`, Mul(-0.25)},
		{"factor string", `"x1.5"`, Mul(0.5)},
		{"unsigned numeric string", `"3"`, Add(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Delta
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			assert.Equal(t, tt.want.Multiplicative, d.Multiplicative)
			assert.InDelta(t, tt.want.Value, d.Value, 1e-9)
		})
	}

	var d Delta
	assert.Error(t, json.Unmarshal([]byte(`"+abc"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestStatMatrix_Recompute(t *testing.T) {
	m := StatMatrix{
		"damage": {Raw: 10, Base: 20, Computed: 20},
		"speed":  {Raw: 5, Base: 5, Computed: 5},
	}

	effects := []Effect{
		{ID: "rage", Duration: 2, Mutations: map[string]Delta{"damage": Mul(0.5)}},
		{ID: "whetstone", Duration: 2, Mutations: map[string]Delta{"damage": Add(4)}},
		{ID: "slow", Duration: 1, Mutations: map[string]Delta{"speed": Mul(-0.4), "armor": Add(3)}},
	}
	m.Recompute(effects)

	// additive first, then multiplicative: (20 + 4) * 1.5
	assert.InDelta(t, 36, m.Get("damage"), 1e-9)
	assert.InDelta(t, 3, m.Get("speed"), 1e-9)
	assert.InDelta(t, 3, m.Get("armor"), 1e-9)
	assert.InDelta(t, 20, m.Base("damage"), 1e-9, "base is never mutated")
	assert.True(t, m.Consistent(effects))

	m.Recompute(nil)
	assert.InDelta(t, 20, m.Get("damage"), 1e-9)
	assert.False(t, m.Consistent(effects))
}

func TestStatMatrix_Layers(t *testing.T) {
	m := StatMatrix{}
	m.AddRaw("strength", 12)
	m.AddRaw("strength", 3)
	m.SealBase()
	m.AddBase("strength", 5)
	m.Recompute(nil)

	s := m["strength"]
	assert.Equal(t, Stat{Raw: 15, Base: 20, Computed: 20}, s)
}

func TestActor_StatusAndEffects(t *testing.T) {
	a := &Actor{ID: "a", MaxHP: 100, HP: 100, MaxEnergy: 10, Energy: 10, Stats: StatMatrix{}}
	assert.Equal(t, StatusAlive, a.Status())

	a.AddEffect(Effect{ID: "stun", Source: "b", Duration: 1, Control: map[string]bool{ControlCanAct: false}, RemoveOn: []string{"is_hit"}})
	assert.Equal(t, StatusStunned, a.Status())

	removed := a.RemoveEffectsOn("is_crit")
	assert.Empty(t, removed)
	removed = a.RemoveEffectsOn("is_hit")
	require.Len(t, removed, 1)
	assert.Equal(t, StatusAlive, a.Status())

	a.SetHP(-30)
	assert.Equal(t, 0, a.HP)
	assert.Equal(t, StatusDead, a.Status())

	a.SetEnergy(99)
	assert.Equal(t, 10, a.Energy)
}

func TestActor_AddEffectRefreshesSameSource(t *testing.T) {
	a := &Actor{}
	a.AddEffect(Effect{ID: "bleed", Source: "x", Duration: 1})
	a.AddEffect(Effect{ID: "poison", Source: "x", Duration: 3})
	a.AddEffect(Effect{ID: "bleed", Source: "x", Duration: 4})
	a.AddEffect(Effect{ID: "bleed", Source: "y", Duration: 2})

	require.Len(t, a.Effects, 3)
	assert.Equal(t, "bleed", a.Effects[0].ID)
	assert.Equal(t, 4, a.Effects[0].Duration)
	assert.Equal(t, "y", a.Effects[2].Source)
}

func sampleActor() *Actor {
	a := &Actor{
		ID:        "char-1",
		Kind:      KindPlayer,
		Name:      "Ayla",
		Team:      "red",
		GearScore: 120,
		Stats: StatMatrix{
			"strength": {Raw: 10, Base: 14, Computed: 14},
			"speed":    {Raw: 6, Base: 6, Computed: 6},
		},
		MaxHP:     150,
		MaxEnergy: 40,
		HP:        90,
		Energy:    12,
		Loadout: Loadout{
			Belt:      []string{"minor_potion"},
			Skills:    []string{"power_strike"},
			Abilities: []string{"basic_attack"},
		},
		Targets:       []string{"char-2"},
		SwitchCharges: 2,
		Effects: []Effect{
			{ID: "haste", Source: "char-1", Duration: 2, Power: 1, Mutations: map[string]Delta{"speed": Mul(0.5)}},
		},
	}
	a.Recompute()
	return a
}

func TestDehydrateRehydrate_RoundTrip(t *testing.T) {
	a := sampleActor()

	blob, err := Dehydrate(a)
	require.NoError(t, err)

	b, err := Rehydrate(blob)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(blob, &raw))
	for _, key := range []string{"hp_current", "energy_current", "targets", "switch_charges", "stats", "effects"} {
		assert.Contains(t, raw, key)
	}
}

func TestRehydrate_AliasAndExtraFields(t *testing.T) {
	blob := []byte(`{
		"entity_id": "m1",
		"type": "monster",
		"name": "Rat",
		"team": "blue",
		"core_stats": {"whatever": 1},
		"math_model": {"strength": {"raw": 3, "base": 3, "computed": 3}},
		"max_hp": 10, "max_energy": 0, "hp_current": 10, "energy_current": 0,
		"loadout": {"belt": [], "skills": [], "abilities": ["bite"]},
		"targets": [], "switch_charges": 0, "effects": []
	}`)

	a, err := Rehydrate(blob)
	require.NoError(t, err)
	assert.Equal(t, KindMonster, a.Kind)
	assert.InDelta(t, 3, a.Stats.Get("strength"), 1e-9)
	assert.Equal(t, []string{"bite"}, a.Loadout.Abilities)
}

func TestActor_CloneIsDeep(t *testing.T) {
	a := sampleActor()
	b := a.Clone()
	b.Loadout.Belt[0] = "changed"
	b.Effects[0].Mutations["speed"] = Add(1)
	b.Stats["strength"] = Stat{}

	assert.Equal(t, "minor_potion", a.Loadout.Belt[0])
	assert.True(t, a.Effects[0].Mutations["speed"].Multiplicative)
	assert.InDelta(t, 14, a.Stats.Get("strength"), 1e-9)
}

func TestActor_HPPool(t *testing.T) {
	a := &Actor{ID: "a", MaxHP: 50, HP: 20}

	assert.Equal(t, 10, a.AdjustHP(10))
	assert.Equal(t, 20, a.AdjustHP(99), "heals stop at max")
	assert.Equal(t, 50, a.HP)

	assert.Equal(t, 0, a.Damage(-5))
	assert.Equal(t, 15, a.Damage(15))
	assert.Equal(t, -35, a.AdjustHP(-99), "damage stops at zero")
	assert.True(t, a.Dead())

	a.SetHP(70)
	assert.Equal(t, 50, a.HP)

	sheet, err := a.Sheet()
	require.NoError(t, err)
	assert.Equal(t, 50, sheet.HP())
	assert.Equal(t, 50, sheet.MaxHP())

	broken := &Actor{ID: "b", HP: 5}
	_, err = broken.Sheet()
	assert.Error(t, err)
	broken.AdjustHP(3)
	assert.Equal(t, 0, broken.HP)
}
