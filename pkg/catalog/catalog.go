// Package catalog holds the declarative game data the combat core reads:
// abilities, items, skills, monster templates and the vitals and reward
// formulas. Loading content from files is handled elsewhere; Default returns
// the built-in set.
package catalog

import (
	"maps"
	"math"
	"slices"

	"github.com/jwebster45206/combat-engine/pkg/actor"
)

// Ability is a usable action. Damage (or healing) is
// Power + sum(computed[stat] * coefficient) over Scaling.
type Ability struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Power       float64            `json:"power,omitempty"`
	Scaling     map[string]float64 `json:"scaling,omitempty"`
	EnergyCost  int                `json:"energy_cost,omitempty"`
	Speed       float64            `json:"speed,omitempty"`    // multiplier on actor speed, 0 means 1
	Accuracy    float64            `json:"accuracy,omitempty"` // hit probability, 0 means 1
	Heal        bool               `json:"heal,omitempty"`
	TargetSelf  bool               `json:"target_self,omitempty"`
	NoCrit      bool               `json:"no_crit,omitempty"`
	Effects     []actor.Effect     `json:"effects,omitempty"`      // applied to each target on hit
	SelfEffects []actor.Effect     `json:"self_effects,omitempty"` // applied to the user
}

// SpeedFactor returns the ability's speed multiplier.
func (a Ability) SpeedFactor() float64 {
	if a.Speed == 0 {
		return 1
	}
	return a.Speed
}

// HitChance returns the probability that the ability connects.
func (a Ability) HitChance() float64 {
	if a.Accuracy == 0 {
		return 1
	}
	return a.Accuracy
}

// Item is equipment or a consumable.
type Item struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Stats           map[string]float64 `json:"stats,omitempty"` // base bonuses while equipped
	GrantsAbilities []string           `json:"grants_abilities,omitempty"`
	Heal            int                `json:"heal,omitempty"`
	Energy          int                `json:"energy,omitempty"`
	Effects         []actor.Effect     `json:"effects,omitempty"` // applied on use
}

// Consumable reports whether the item can be used from the belt.
func (i Item) Consumable() bool {
	return i.Heal != 0 || i.Energy != 0 || len(i.Effects) > 0
}

// Skill is either passive (PerRank bonuses to base) or active (Ability).
type Skill struct {
	ID      string             `json:"id"`
	PerRank map[string]float64 `json:"per_rank,omitempty"`
	Ability string             `json:"ability,omitempty"`
}

// MonsterTemplate describes a PvE opponent.
type MonsterTemplate struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Attributes map[string]int `json:"attributes"`
	Abilities  []string       `json:"abilities"`
	Belt       []string       `json:"belt,omitempty"`
	GearScore  int            `json:"gear_score"`
}

// VitalsFormula derives max vitals from base stats.
type VitalsFormula struct {
	HPBase        float64            `json:"hp_base"`
	HPPerStat     map[string]float64 `json:"hp_per_stat"`
	EnergyBase    float64            `json:"energy_base"`
	EnergyPerStat map[string]float64 `json:"energy_per_stat"`
}

// MaxVitals evaluates the formula. Both results are at least 1 HP and 0
// energy.
func (f VitalsFormula) MaxVitals(base func(string) float64) (hp, energy int) {
	h := f.HPBase + weigh(base, f.HPPerStat)
	e := f.EnergyBase + weigh(base, f.EnergyPerStat)
	return max(int(math.Round(h)), 1), max(int(math.Round(e)), 0)
}

// weigh sums base(stat)*coef in stat order so rounding is stable across runs.
func weigh(base func(string) float64, coefs map[string]float64) float64 {
	var sum float64
	for _, stat := range slices.Sorted(maps.Keys(coefs)) {
		sum += base(stat) * coefs[stat]
	}
	return sum
}

// RewardFormula produces rewards from opponent difficulty, where
// difficulty = mean opponent gear score / DifficultyUnit.
type RewardFormula struct {
	BaseXP            float64 `json:"base_xp"`
	XPPerDifficulty   float64 `json:"xp_per_difficulty"`
	BaseGold          float64 `json:"base_gold"`
	GoldPerDifficulty float64 `json:"gold_per_difficulty"`
	DifficultyUnit    float64 `json:"difficulty_unit"`
}

// Rewards evaluates the formula for a mean opponent gear score.
func (f RewardFormula) Rewards(meanGearScore float64) (xp, gold int) {
	unit := f.DifficultyUnit
	if unit <= 0 {
		unit = 1
	}
	d := meanGearScore / unit
	return int(math.Round(f.BaseXP + f.XPPerDifficulty*d)), int(math.Round(f.BaseGold + f.GoldPerDifficulty*d))
}

// Catalog is the full declarative data set.
type Catalog struct {
	Abilities map[string]Ability         `json:"abilities"`
	Items     map[string]Item            `json:"items"`
	Skills    map[string]Skill           `json:"skills"`
	Monsters  map[string]MonsterTemplate `json:"monsters"`

	// Derived adds attribute-driven raw stats: stat -> attribute -> coefficient.
	Derived map[string]map[string]float64 `json:"derived"`

	Vitals  VitalsFormula `json:"vitals"`
	Rewards RewardFormula `json:"rewards"`

	DefaultAbility string  `json:"default_ability"`
	SkillSlots     int     `json:"skill_slots"`
	SwitchCharges  int     `json:"switch_charges"`
	CritPower      float64 `json:"crit_power"` // damage multiplier on crit when the actor has no crit_power stat
}

func (c *Catalog) Ability(id string) (Ability, bool) {
	a, ok := c.Abilities[id]
	return a, ok
}

func (c *Catalog) Item(id string) (Item, bool) {
	i, ok := c.Items[id]
	return i, ok
}

func (c *Catalog) Skill(id string) (Skill, bool) {
	s, ok := c.Skills[id]
	return s, ok
}

func (c *Catalog) Monster(id string) (MonsterTemplate, bool) {
	m, ok := c.Monsters[id]
	return m, ok
}
