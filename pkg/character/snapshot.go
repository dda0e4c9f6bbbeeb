package character

import (
	"context"
	"maps"
	"slices"
)

// Facet names one slice of persistent character state.
type Facet string

const (
	FacetAttributes Facet = "attributes"
	FacetInventory  Facet = "inventory"
	FacetSkills     Facet = "skills"
	FacetVitals     Facet = "vitals"
	FacetSymbiote   Facet = "symbiote"
	FacetWallet     Facet = "wallet"
)

// AllFacets lists every facet in canonical order.
var AllFacets = []Facet{FacetAttributes, FacetInventory, FacetSkills, FacetVitals, FacetSymbiote, FacetWallet}

// Affix is one stat bonus carried by an item.
type Affix struct {
	Stat  string  `json:"stat"`
	Value float64 `json:"value"`
}

// InventorySlot is an item-bearing slot with its affix bundle.
type InventorySlot struct {
	ItemID    string  `json:"item_id"`
	Slot      string  `json:"slot"` // weapon, armor, trinket, belt, bag
	Equipped  bool    `json:"equipped,omitempty"`
	ItemLevel int     `json:"item_level,omitempty"`
	Quantity  int     `json:"quantity,omitempty"`
	Affixes   []Affix `json:"affixes,omitempty"`
}

// SlotBelt marks consumables available in combat.
const SlotBelt = "belt"

// MaxBeltItems caps how many belt units a snapshot brings into combat.
const MaxBeltItems = 32

// Vitals holds current resources. HPCurrent/EnergyCurrent of -1 mean "full".
// Caps are zero when unknown.
type Vitals struct {
	HPCurrent     int `json:"hp_current"`
	EnergyCurrent int `json:"energy_current"`
	HPMax         int `json:"hp_max,omitempty"`
	EnergyMax     int `json:"energy_max,omitempty"`
}

// Symbiote is an optional NPC companion whose attributes add to the host.
type Symbiote struct {
	Name       string         `json:"name"`
	Attributes map[string]int `json:"attributes,omitempty"`
}

// Snapshot is the output of the Context Assembler. Facets not covered by
// the scope are nil. A snapshot must not be mutated after construction.
type Snapshot struct {
	CharID     string          `json:"char_id"`
	Name       string          `json:"name,omitempty"`
	Scope      Scope           `json:"scope"`
	Attributes map[string]int  `json:"attributes,omitempty"`
	Inventory  []InventorySlot `json:"inventory,omitempty"`
	Skills     map[string]int  `json:"skills,omitempty"`
	Vitals     *Vitals         `json:"vitals,omitempty"`
	Symbiote   *Symbiote       `json:"symbiote,omitempty"`
	Wallet     map[string]int  `json:"wallet,omitempty"`
	Loaded     map[Facet]bool  `json:"loaded,omitempty"`
}

// Has reports whether the facet was loaded. A loaded facet may still be
// empty (a character without a symbiote).
func (s *Snapshot) Has(f Facet) bool {
	return s != nil && s.Loaded[f]
}

// Equipped returns the equipped slots in inventory order.
func (s *Snapshot) Equipped() []InventorySlot {
	var out []InventorySlot
	for _, slot := range s.Inventory {
		if slot.Equipped && slot.Slot != SlotBelt {
			out = append(out, slot)
		}
	}
	return out
}

// Belt returns the item IDs on the belt, one entry per unit of quantity,
// stopping at MaxBeltItems.
func (s *Snapshot) Belt() []string {
	var out []string
	for _, slot := range s.Inventory {
		if slot.Slot != SlotBelt {
			continue
		}
		n := min(max(slot.Quantity, 1), MaxBeltItems-len(out))
		for range n {
			out = append(out, slot.ItemID)
		}
		if len(out) == MaxBeltItems {
			break
		}
	}
	return out
}

// GearScore summarizes equipment strength: item level of every equipped
// item plus ten per affix.
func (s *Snapshot) GearScore() int {
	gs := 0
	for _, slot := range s.Equipped() {
		gs += slot.ItemLevel + 10*len(slot.Affixes)
	}
	return gs
}

// SkillKeys returns the skill keys in sorted order.
func (s *Snapshot) SkillKeys() []string {
	return slices.Sorted(maps.Keys(s.Skills))
}

// FacetReader is the relational-store port used by the Assembler. Each read
// returns NOT_FOUND for an unknown character or UPSTREAM_UNAVAILABLE when the
// store fails.
type FacetReader interface {
	Attributes(ctx context.Context, charID string) (map[string]int, error)
	Inventory(ctx context.Context, charID string) ([]InventorySlot, error)
	Skills(ctx context.Context, charID string) (map[string]int, error)
	Vitals(ctx context.Context, charID string) (*Vitals, error)
	Symbiote(ctx context.Context, charID string) (*Symbiote, error)
	Wallet(ctx context.Context, charID string) (map[string]int, error)
	Name(ctx context.Context, charID string) (string, error)
}
