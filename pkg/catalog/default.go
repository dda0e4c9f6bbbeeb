package catalog

import (
	"fmt"

	"github.com/jwebster45206/combat-engine/pkg/actor"
)

// Attribute names used by the default content.
const (
	AttrStrength     = "strength"
	AttrAgility      = "agility"
	AttrConstitution = "constitution"
	AttrEndurance    = "endurance"
	AttrIntellect    = "intellect"
)

// Default returns the built-in content set.
func Default() *Catalog {
	return &Catalog{
		Abilities: map[string]Ability{
			"strike": {
				ID: "strike", Name: "Strike", Power: 10,
				Scaling: map[string]float64{actor.StatDamage: 1},
			},
			"quick_jab": {
				ID: "quick_jab", Name: "Quick Jab", Power: 6, Speed: 1.5,
				Scaling: map[string]float64{actor.StatDamage: 0.6},
			},
			"heavy_blow": {
				ID: "heavy_blow", Name: "Heavy Blow", Power: 18, Speed: 0.8, Accuracy: 0.85, EnergyCost: 10,
				Scaling: map[string]float64{actor.StatDamage: 1.2},
			},
			"shield_bash": {
				ID: "shield_bash", Name: "Shield Bash", Power: 5, EnergyCost: 15,
				Scaling: map[string]float64{actor.StatArmor: 0.2},
				Effects: []actor.Effect{{
					ID: "stunned", Duration: 1,
					Control:  map[string]bool{actor.ControlCanAct: false},
					RemoveOn: []string{"is_hit"},
				}},
			},
			"poison_dart": {
				ID: "poison_dart", Name: "Poison Dart", Power: 4, EnergyCost: 8, NoCrit: true,
				Effects: []actor.Effect{{
					ID: "poisoned", Duration: 3,
					Tick: map[string]float64{"hp": -3},
				}},
			},
			"battle_cry": {
				ID: "battle_cry", Name: "Battle Cry", EnergyCost: 12, TargetSelf: true,
				SelfEffects: []actor.Effect{{
					ID: "rage", Duration: 3,
					Mutations: map[string]actor.Delta{actor.StatDamage: actor.Mul(0.5)},
					RemoveOn:  []string{"did_crit"},
				}},
			},
			"mend": {
				ID: "mend", Name: "Mend", Power: 15, EnergyCost: 10, Heal: true, TargetSelf: true, NoCrit: true,
				Scaling: map[string]float64{AttrIntellect: 1},
			},
			"bite": {
				ID: "bite", Name: "Bite", Power: 8, Speed: 1.2,
				Scaling: map[string]float64{actor.StatDamage: 0.8},
			},
		},
		Items: map[string]Item{
			"iron_sword": {
				ID: "iron_sword", Name: "Iron Sword",
				Stats:           map[string]float64{actor.StatDamage: 5},
				GrantsAbilities: []string{"heavy_blow"},
			},
			"oak_shield": {
				ID: "oak_shield", Name: "Oak Shield",
				Stats:           map[string]float64{actor.StatArmor: 12},
				GrantsAbilities: []string{"shield_bash"},
			},
			"leather_armor": {
				ID: "leather_armor", Name: "Leather Armor",
				Stats: map[string]float64{actor.StatArmor: 8, actor.StatDodge: 2},
			},
			"health_potion": {ID: "health_potion", Name: "Health Potion", Heal: 30},
			"energy_tonic":  {ID: "energy_tonic", Name: "Energy Tonic", Energy: 25},
			"whetstone": {
				ID: "whetstone", Name: "Whetstone",
				Effects: []actor.Effect{{
					ID: "sharpened", Duration: 3,
					Mutations: map[string]actor.Delta{actor.StatDamage: actor.Add(4)},
				}},
			},
		},
		Skills: map[string]Skill{
			"swordsmanship": {ID: "swordsmanship", PerRank: map[string]float64{actor.StatDamage: 2}},
			"toughness":     {ID: "toughness", PerRank: map[string]float64{AttrConstitution: 1, actor.StatArmor: 1}},
			"evasion":       {ID: "evasion", PerRank: map[string]float64{actor.StatDodge: 1.5}},
			"quick_jab":     {ID: "quick_jab", Ability: "quick_jab"},
			"poison_dart":   {ID: "poison_dart", Ability: "poison_dart"},
			"battle_cry":    {ID: "battle_cry", Ability: "battle_cry"},
			"mend":          {ID: "mend", Ability: "mend"},
		},
		Monsters: map[string]MonsterTemplate{
			"training_dummy": {
				ID: "training_dummy", Name: "Training Dummy", GearScore: 0,
				Attributes: map[string]int{AttrConstitution: 10},
				Abilities:  []string{"strike"},
			},
			"wolf": {
				ID: "wolf", Name: "Grey Wolf", GearScore: 60,
				Attributes: map[string]int{AttrStrength: 6, AttrAgility: 9, AttrConstitution: 6, AttrEndurance: 5},
				Abilities:  []string{"bite", "strike"},
			},
			"goblin": {
				ID: "goblin", Name: "Goblin Raider", GearScore: 90,
				Attributes: map[string]int{AttrStrength: 7, AttrAgility: 7, AttrConstitution: 7, AttrEndurance: 6},
				Abilities:  []string{"strike", "poison_dart"},
				Belt:       []string{"health_potion"},
			},
		},
		Derived: map[string]map[string]float64{
			actor.StatDamage:     {AttrStrength: 1},
			actor.StatArmor:      {AttrConstitution: 0.5},
			actor.StatSpeed:      {AttrAgility: 1},
			actor.StatCritChance: {AttrAgility: 0.5},
			actor.StatDodge:      {AttrAgility: 0.5},
		},
		Vitals: VitalsFormula{
			HPBase:        50,
			HPPerStat:     map[string]float64{AttrConstitution: 5},
			EnergyBase:    20,
			EnergyPerStat: map[string]float64{AttrEndurance: 3},
		},
		Rewards: RewardFormula{
			BaseXP:            20,
			XPPerDifficulty:   10,
			BaseGold:          5,
			GoldPerDifficulty: 3,
			DifficultyUnit:    50,
		},
		DefaultAbility: "strike",
		SkillSlots:     4,
		SwitchCharges:  2,
		CritPower:      1.5,
	}
}

// Validate checks that every reference in the catalog resolves.
func (c *Catalog) Validate() error {
	if _, ok := c.Abilities[c.DefaultAbility]; !ok {
		return fmt.Errorf("default ability %q not found", c.DefaultAbility)
	}
	for id, it := range c.Items {
		for _, a := range it.GrantsAbilities {
			if _, ok := c.Abilities[a]; !ok {
				return fmt.Errorf("item %q grants unknown ability %q", id, a)
			}
		}
	}
	for id, sk := range c.Skills {
		if sk.Ability == "" && len(sk.PerRank) == 0 {
			return fmt.Errorf("skill %q is neither passive nor active", id)
		}
		if sk.Ability != "" {
			if _, ok := c.Abilities[sk.Ability]; !ok {
				return fmt.Errorf("skill %q references unknown ability %q", id, sk.Ability)
			}
		}
	}
	for id, m := range c.Monsters {
		if len(m.Abilities) == 0 {
			return fmt.Errorf("monster %q has no abilities", id)
		}
		for _, a := range m.Abilities {
			if _, ok := c.Abilities[a]; !ok {
				return fmt.Errorf("monster %q references unknown ability %q", id, a)
			}
		}
		for _, it := range m.Belt {
			if _, ok := c.Items[it]; !ok {
				return fmt.Errorf("monster %q carries unknown item %q", id, it)
			}
		}
	}
	if c.SkillSlots < 0 || c.SwitchCharges < 0 {
		return fmt.Errorf("skill slots and switch charges must not be negative")
	}
	return nil
}
