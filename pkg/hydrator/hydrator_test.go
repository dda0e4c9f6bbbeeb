package hydrator

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/catalog"
	"github.com/jwebster45206/combat-engine/pkg/character"
)

func sampleSnapshot() *character.Snapshot {
	return &character.Snapshot{
		CharID: "char-1",
		Name:   "aria",
		Scope:  character.ScopeCombats,
		Attributes: map[string]int{
			catalog.AttrStrength:     10,
			catalog.AttrAgility:      8,
			catalog.AttrConstitution: 10,
			catalog.AttrEndurance:    4,
		},
		Inventory: []character.InventorySlot{
			{ItemID: "iron_sword", Slot: "weapon", Equipped: true, ItemLevel: 20, Affixes: []character.Affix{{Stat: actor.StatDamage, Value: 2}}},
			{ItemID: "cursed_relic", Slot: "trinket", Equipped: true, ItemLevel: 5},
			{ItemID: "health_potion", Slot: character.SlotBelt, Quantity: 2},
			{ItemID: "mystery_brew", Slot: character.SlotBelt},
		},
		Skills: map[string]int{
			"swordsmanship": 2,
			"quick_jab":     1,
			"mend":          1,
			"forgotten_art": 3,
		},
		Vitals: &character.Vitals{HPCurrent: -1, EnergyCurrent: 5},
	}
}

func TestHydrate(t *testing.T) {
	h := New(catalog.Default(), nil)
	snap := sampleSnapshot()

	a, err := h.Hydrate(snap, Meta{Team: "A"})
	require.NoError(t, err)

	assert.Equal(t, "char-1", a.ID)
	assert.Equal(t, actor.KindPlayer, a.Kind)
	assert.Equal(t, "aria", a.Name)
	assert.Equal(t, "A", a.Team)

	t.Run("stat layers", func(t *testing.T) {
		dmg := a.Stats[actor.StatDamage]
		assert.Equal(t, 10.0, dmg.Raw)
		assert.Equal(t, 21.0, dmg.Base, "raw + sword + affix + swordsmanship")
		assert.Equal(t, 21.0, dmg.Computed)
		assert.Equal(t, 8.0, a.Stats.Get(actor.StatSpeed))
		assert.Equal(t, 1.5, a.Stats.Get(actor.StatCritPower))
		assert.True(t, a.Stats.Consistent(a.Effects))
	})

	t.Run("vitals", func(t *testing.T) {
		assert.Equal(t, 100, a.MaxHP)
		assert.Equal(t, 100, a.HP, "-1 fills to max")
		assert.Equal(t, 32, a.MaxEnergy)
		assert.Equal(t, 5, a.Energy)
	})

	t.Run("loadout", func(t *testing.T) {
		assert.Equal(t, []string{"strike", "heavy_blow"}, a.Loadout.Abilities)
		assert.Equal(t, []string{"mend", "quick_jab"}, a.Loadout.Skills)
		assert.Empty(t, a.Loadout.Reserve)
		assert.Equal(t, []string{"health_potion", "health_potion"}, a.Loadout.Belt)
		assert.Equal(t, 2, a.SwitchCharges)
	})

	t.Run("gear score", func(t *testing.T) {
		assert.Equal(t, 35, a.GearScore)
	})

	t.Run("snapshot untouched", func(t *testing.T) {
		assert.Equal(t, sampleSnapshot(), snap)
	})
}

func TestHydrateVitalsClamp(t *testing.T) {
	h := New(catalog.Default(), nil)

	tests := []struct {
		name       string
		vitals     *character.Vitals
		wantHP     int
		wantEnergy int
	}{
		{"nil vitals means full", nil, 100, 32},
		{"over max clamps", &character.Vitals{HPCurrent: 500, EnergyCurrent: 500}, 100, 32},
		{"negative clamps to zero", &character.Vitals{HPCurrent: -7, EnergyCurrent: -3}, 0, 0},
		{"zero stays zero", &character.Vitals{HPCurrent: 0, EnergyCurrent: 0}, 0, 0},
		{"partial", &character.Vitals{HPCurrent: 42, EnergyCurrent: 10}, 42, 10},
		{"known caps win", &character.Vitals{HPCurrent: -1, EnergyCurrent: -1, HPMax: 80, EnergyMax: 12}, 80, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := sampleSnapshot()
			snap.Vitals = tt.vitals
			a, err := h.Hydrate(snap, Meta{Team: "A"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantHP, a.HP)
			assert.Equal(t, tt.wantEnergy, a.Energy)
			assert.LessOrEqual(t, a.HP, a.MaxHP)
			assert.LessOrEqual(t, a.Energy, a.MaxEnergy)
		})
	}
}

func TestHydrateLogsDroppedItems(t *testing.T) {
	var buf bytes.Buffer
	h := New(catalog.Default(), slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := h.Hydrate(sampleSnapshot(), Meta{Team: "A"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `msg="Dropping unknown belt item"`)
	assert.Contains(t, buf.String(), "item_id=mystery_brew")
}

func TestHydrateSkillSlots(t *testing.T) {
	c := catalog.Default()
	c.SkillSlots = 1
	h := New(c, nil)

	a, err := h.Hydrate(sampleSnapshot(), Meta{Team: "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mend"}, a.Loadout.Skills)
	assert.Equal(t, []string{"quick_jab"}, a.Loadout.Reserve)
}

func TestHydrateSymbiote(t *testing.T) {
	h := New(catalog.Default(), nil)
	snap := sampleSnapshot()
	snap.Symbiote = &character.Symbiote{Name: "mote", Attributes: map[string]int{catalog.AttrConstitution: 2}}

	a, err := h.Hydrate(snap, Meta{Team: "A"})
	require.NoError(t, err)
	assert.Equal(t, 12.0, a.Stats[catalog.AttrConstitution].Raw)
	assert.Equal(t, 110, a.MaxHP)
}

func TestHydrateRoundTrip(t *testing.T) {
	h := New(catalog.Default(), nil)
	a, err := h.Hydrate(sampleSnapshot(), Meta{Team: "A"})
	require.NoError(t, err)

	data, err := actor.Dehydrate(a)
	require.NoError(t, err)
	back, err := actor.Rehydrate(data)
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func TestHydrateMonster(t *testing.T) {
	h := New(catalog.Default(), nil)

	a, err := h.HydrateMonster("goblin", Meta{EntityID: "m-1", Team: "B"})
	require.NoError(t, err)
	assert.Equal(t, actor.KindMonster, a.Kind)
	assert.True(t, a.AI)
	assert.Equal(t, "Goblin Raider", a.Name)
	assert.Equal(t, 85, a.MaxHP)
	assert.Equal(t, a.MaxHP, a.HP)
	assert.Equal(t, []string{"strike", "poison_dart"}, a.Loadout.Abilities)
	assert.Equal(t, []string{"health_potion"}, a.Loadout.Belt)
	assert.Equal(t, 90, a.GearScore)

	_, err = h.HydrateMonster("dragon", Meta{EntityID: "m-2", Team: "B"})
	assert.Error(t, err)
}

func TestShadow(t *testing.T) {
	snap := sampleSnapshot()
	snap.Vitals = &character.Vitals{HPCurrent: 3, EnergyCurrent: 0}

	sh := Shadow(snap, "shadow-1")
	assert.Equal(t, "shadow-1", sh.CharID)
	assert.Equal(t, "Aria's Shadow", sh.Name)
	assert.Equal(t, actor.HPFull, sh.Vitals.HPCurrent)
	assert.Equal(t, snap.GearScore(), sh.GearScore())

	sh.Attributes[catalog.AttrStrength] = 99
	assert.Equal(t, 10, snap.Attributes[catalog.AttrStrength], "shadow must not alias the source")
	assert.Equal(t, 3, snap.Vitals.HPCurrent)
}

func TestShadowName(t *testing.T) {
	assert.Equal(t, "Sir Kay's Shadow", ShadowName("sir kay"))
	assert.Equal(t, "Nameless's Shadow", ShadowName(""))
}
