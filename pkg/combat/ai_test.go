package combat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-engine/pkg/actor"
)

func TestChooseAIMove(t *testing.T) {
	r := newTestResolver(50)
	monster := newTestActor("m", "B", 10)
	monster.Kind = actor.KindMonster
	monster.AI = true
	monster.Loadout = actor.Loadout{Abilities: []string{"punch", "mend", "costly"}}
	monster.Energy = 10
	s := newTestSession(newTestActor("a", "A", 10), monster)

	for range 20 {
		m, err := r.ChooseAIMove(s, "m", "ai-1")
		require.NoError(t, err)
		assert.Equal(t, StrategyExchange, m.Strategy)
		assert.Equal(t, []string{"a"}, m.Targets)

		var p AbilityPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		assert.Equal(t, "punch", p.AbilityID, "mend needs low hp and costly needs energy")
	}

	monster.HP = 20
	seen := map[string]bool{}
	for range 50 {
		m, err := r.ChooseAIMove(s, "m", "ai-2")
		require.NoError(t, err)
		var p AbilityPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		seen[p.AbilityID] = true
	}
	assert.True(t, seen["mend"])
	assert.False(t, seen["costly"])
}

func TestChooseAIMoveNothingUsable(t *testing.T) {
	r := newTestResolver(50)
	monster := newTestActor("m", "B", 10)
	monster.Loadout = actor.Loadout{Abilities: []string{"costly"}}
	monster.Energy = 0
	s := newTestSession(newTestActor("a", "A", 10), monster)

	_, err := r.ChooseAIMove(s, "m", "ai-1")
	assert.Error(t, err)
}

func TestPairWithAI(t *testing.T) {
	r := newTestResolver(50)
	monster := newTestActor("m", "B", 10)
	monster.AI = true
	s := newTestSession(newTestActor("a", "A", 10), monster)

	pair := ActionPair{ActionType: StrategyExchange, PrimaryMove: use("m1", "a", "punch")}
	ok, err := r.PairWithAI(s, &pair, "ai-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, pair.PartnerMove)
	assert.Equal(t, "m", pair.PartnerMove.CharID)

	out, err := r.Resolve(s, pair)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Events)
	assert.Equal(t, 1, s.Meta.Round)

	t.Run("human opponent is left alone", func(t *testing.T) {
		s := newTestSession(newTestActor("a", "A", 10), newTestActor("b", "B", 10))
		pair := ActionPair{PrimaryMove: use("m1", "a", "punch")}
		ok, err := r.PairWithAI(s, &pair, "ai-1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, pair.PartnerMove)
	})
}
