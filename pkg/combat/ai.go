package combat

import (
	"encoding/json"
	"slices"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/chance"
)

// ChooseAIMove picks an exchange move for an AI-driven actor. Usable
// abilities are weighted by power; heals are only considered below half HP
// and self buffs only while not already active.
func (r *Resolver) ChooseAIMove(s *Session, actorID, moveID string) (Move, error) {
	a, ok := s.Actors[actorID]
	if !ok {
		return Move{}, errs.NotFound("actor %s", actorID)
	}
	opponents := s.Opponents(a.Team)
	if len(opponents) == 0 {
		return Move{}, errs.Validation("actor %s has no opponents", actorID)
	}

	var ids []string
	for _, id := range slices.Concat(a.Loadout.Abilities, a.Loadout.Skills) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	var items []chance.Weighted[string]
	for _, id := range ids {
		ab, ok := r.catalog.Ability(id)
		if !ok || a.Energy < ab.EnergyCost {
			continue
		}
		if ab.Heal && a.HP*2 >= a.MaxHP {
			continue
		}
		if ab.TargetSelf && !ab.Heal && hasAny(a.Effects, ab.SelfEffects) {
			continue
		}
		items = append(items, chance.Weighted[string]{Value: id, Weight: max(ab.Power, 1)})
	}
	if len(items) == 0 {
		return Move{}, errs.Validation("actor %s has no usable ability", actorID)
	}
	abilityID, err := chance.WeightedChoice(r.oracle, items)
	if err != nil {
		return Move{}, err
	}
	payload, err := json.Marshal(AbilityPayload{AbilityID: abilityID})
	if err != nil {
		return Move{}, errs.Internal(err, "encode ai payload")
	}

	m := Move{MoveID: moveID, CharID: actorID, Strategy: StrategyExchange, Payload: payload}
	if ab, _ := r.catalog.Ability(abilityID); !ab.TargetSelf {
		m.Targets = []string{opponents[0].ID}
	}
	return m, nil
}

func hasAny(active, wanted []actor.Effect) bool {
	for _, w := range wanted {
		for _, e := range active {
			if e.ID == w.ID {
				return true
			}
		}
	}
	return false
}

// PairWithAI fills the partner move of a one-sided exchange when the
// opponent is AI driven. It reports whether a partner was added.
func (r *Resolver) PairWithAI(s *Session, pair *ActionPair, moveID string) (bool, error) {
	if pair.Type() != StrategyExchange || pair.PartnerMove != nil || pair.IsForced {
		return false, nil
	}
	primary, ok := s.Actors[pair.PrimaryMove.CharID]
	if !ok {
		return false, nil
	}
	var oppID string
	if len(pair.PrimaryMove.Targets) > 0 {
		oppID = pair.PrimaryMove.Targets[0]
	} else if opp := s.Opponents(primary.Team); len(opp) > 0 {
		oppID = opp[0].ID
	}
	opp, ok := s.Actors[oppID]
	if !ok || !opp.AI || opp.Dead() || opp.Team == primary.Team {
		return false, nil
	}
	m, err := r.ChooseAIMove(s, opp.ID, moveID)
	if err != nil {
		return false, err
	}
	pair.PartnerMove = &m
	return true, nil
}
