// Package hydrator turns character snapshots and monster templates into
// combat actors.
package hydrator

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/catalog"
	"github.com/jwebster45206/combat-engine/pkg/character"
)

// Meta is the session-assigned identity of an actor.
type Meta struct {
	EntityID string
	Kind     actor.Kind
	Name     string
	Team     string
	AI       bool
}

type Hydrator struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func New(c *catalog.Catalog, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{catalog: c, logger: logger}
}

// Hydrate builds an actor from a snapshot. The snapshot is not modified.
func (h *Hydrator) Hydrate(snap *character.Snapshot, meta Meta) (*actor.Actor, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	if meta.EntityID == "" {
		meta.EntityID = snap.CharID
	}
	if meta.Name == "" {
		meta.Name = snap.Name
	}
	if meta.Kind == "" {
		meta.Kind = actor.KindPlayer
	}
	log := h.logger.With("entity_id", meta.EntityID)

	stats := actor.StatMatrix{}
	attrs := make(map[string]int, len(snap.Attributes))
	for k, v := range snap.Attributes {
		attrs[k] += v
	}
	if snap.Symbiote != nil {
		for k, v := range snap.Symbiote.Attributes {
			attrs[k] += v
		}
	}
	h.seedRaw(stats, attrs)

	var loadout actor.Loadout
	if h.catalog.DefaultAbility != "" {
		loadout.Abilities = append(loadout.Abilities, h.catalog.DefaultAbility)
	}

	for _, slot := range snap.Equipped() {
		item, ok := h.catalog.Item(slot.ItemID)
		if !ok {
			log.Warn("Dropping unknown equipped item", "item_id", slot.ItemID)
			continue
		}
		for stat, v := range item.Stats {
			stats.AddBase(stat, v)
		}
		for _, a := range slot.Affixes {
			stats.AddBase(a.Stat, a.Value)
		}
		for _, id := range item.GrantsAbilities {
			if !slices.Contains(loadout.Abilities, id) {
				loadout.Abilities = append(loadout.Abilities, id)
			}
		}
	}

	for _, key := range snap.SkillKeys() {
		rank := snap.Skills[key]
		if rank <= 0 {
			continue
		}
		sk, ok := h.catalog.Skill(key)
		if !ok {
			log.Warn("Dropping unknown skill", "skill", key)
			continue
		}
		for stat, v := range sk.PerRank {
			stats.AddBase(stat, v*float64(rank))
		}
		if sk.Ability == "" {
			continue
		}
		if len(loadout.Skills) < h.catalog.SkillSlots {
			loadout.Skills = append(loadout.Skills, sk.Ability)
		} else {
			loadout.Reserve = append(loadout.Reserve, sk.Ability)
		}
	}

	for _, id := range snap.Belt() {
		if _, ok := h.catalog.Item(id); !ok {
			log.Warn("Dropping unknown belt item", "item_id", id)
			continue
		}
		loadout.Belt = append(loadout.Belt, id)
	}

	var vitals character.Vitals
	if snap.Vitals != nil {
		vitals = *snap.Vitals
	} else {
		vitals = character.Vitals{HPCurrent: actor.HPFull, EnergyCurrent: actor.HPFull}
	}

	a := &actor.Actor{
		ID:            meta.EntityID,
		Kind:          meta.Kind,
		Name:          meta.Name,
		Team:          meta.Team,
		AI:            meta.AI,
		GearScore:     snap.GearScore(),
		Stats:         stats,
		Loadout:       loadout,
		Targets:       []string{},
		SwitchCharges: h.catalog.SwitchCharges,
		Effects:       []actor.Effect{},
	}
	if err := h.applyVitals(a, vitals); err != nil {
		return nil, err
	}
	return a, nil
}

// HydrateMonster builds an AI actor from a monster template.
func (h *Hydrator) HydrateMonster(monsterID string, meta Meta) (*actor.Actor, error) {
	tpl, ok := h.catalog.Monster(monsterID)
	if !ok {
		return nil, fmt.Errorf("unknown monster %q", monsterID)
	}
	if meta.Name == "" {
		meta.Name = tpl.Name
	}
	log := h.logger.With("entity_id", meta.EntityID, "monster_id", monsterID)

	stats := actor.StatMatrix{}
	h.seedRaw(stats, tpl.Attributes)

	var loadout actor.Loadout
	for _, id := range tpl.Abilities {
		if _, ok := h.catalog.Ability(id); !ok {
			log.Warn("Dropping unknown monster ability", "ability_id", id)
			continue
		}
		loadout.Abilities = append(loadout.Abilities, id)
	}
	for _, id := range tpl.Belt {
		if _, ok := h.catalog.Item(id); !ok {
			log.Warn("Dropping unknown belt item", "item_id", id)
			continue
		}
		loadout.Belt = append(loadout.Belt, id)
	}

	a := &actor.Actor{
		ID:        meta.EntityID,
		Kind:      actor.KindMonster,
		Name:      meta.Name,
		Team:      meta.Team,
		AI:        true,
		GearScore: tpl.GearScore,
		Stats:     stats,
		Loadout:   loadout,
		Targets:   []string{},
		Effects:   []actor.Effect{},
	}
	full := character.Vitals{HPCurrent: actor.HPFull, EnergyCurrent: actor.HPFull}
	if err := h.applyVitals(a, full); err != nil {
		return nil, err
	}
	return a, nil
}

// seedRaw fills the raw layer from attributes and the catalog's derived
// stat table, then seals base.
func (h *Hydrator) seedRaw(stats actor.StatMatrix, attrs map[string]int) {
	for k, v := range attrs {
		stats.AddRaw(k, float64(v))
	}
	for stat, coefs := range h.catalog.Derived {
		var v float64
		for attr, c := range coefs {
			v += float64(attrs[attr]) * c
		}
		stats.AddRaw(stat, v)
	}
	if _, ok := stats[actor.StatCritPower]; !ok && h.catalog.CritPower > 0 {
		stats.AddRaw(actor.StatCritPower, h.catalog.CritPower)
	}
	stats.SealBase()
}

// applyVitals computes max vitals from base and applies the current vitals
// rule. The HP pool lives on the actor's d20 sheet, which owns the bounds.
func (h *Hydrator) applyVitals(a *actor.Actor, v character.Vitals) error {
	a.Recompute()

	maxHP, maxEnergy := h.catalog.Vitals.MaxVitals(a.Stats.Base)
	if v.HPMax > 0 {
		maxHP = v.HPMax
	}
	if v.EnergyMax > 0 {
		maxEnergy = v.EnergyMax
	}

	a.MaxHP, a.HP = maxHP, maxHP
	if _, err := a.Sheet(); err != nil {
		return fmt.Errorf("failed to build actor sheet: %w", err)
	}
	if v.HPCurrent != actor.HPFull {
		a.SetHP(v.HPCurrent)
	}

	a.MaxEnergy = maxEnergy
	energy := v.EnergyCurrent
	if energy == actor.HPFull {
		energy = maxEnergy
	}
	a.SetEnergy(energy)
	return nil
}
