package hydrator

import (
	"fmt"
	"maps"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/character"
)

var titleCaser = cases.Title(language.English)

// ShadowName returns the display name of a character's AI double.
func ShadowName(name string) string {
	if name == "" {
		name = "nameless"
	}
	return titleCaser.String(fmt.Sprintf("%s's shadow", name))
}

// Shadow returns a full-health copy of a combat snapshot to be driven by the
// AI. The input is not modified.
func Shadow(snap *character.Snapshot, shadowID string) *character.Snapshot {
	out := &character.Snapshot{
		CharID:     shadowID,
		Name:       ShadowName(snap.Name),
		Scope:      snap.Scope,
		Attributes: maps.Clone(snap.Attributes),
		Skills:     maps.Clone(snap.Skills),
		Loaded:     maps.Clone(snap.Loaded),
	}
	for _, slot := range snap.Inventory {
		cp := slot
		cp.Affixes = slices.Clone(slot.Affixes)
		out.Inventory = append(out.Inventory, cp)
	}
	if snap.Symbiote != nil {
		out.Symbiote = &character.Symbiote{
			Name:       snap.Symbiote.Name,
			Attributes: maps.Clone(snap.Symbiote.Attributes),
		}
	}
	out.Vitals = &character.Vitals{HPCurrent: actor.HPFull, EnergyCurrent: actor.HPFull}
	return out
}
