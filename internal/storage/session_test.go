package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStorage(client, slog.Default()), mr
}

func testActor(id, team string) *actor.Actor {
	return &actor.Actor{
		ID:        id,
		Kind:      actor.KindPlayer,
		Name:      id,
		Team:      team,
		Stats:     actor.StatMatrix{actor.StatDamage: {Raw: 10, Base: 12, Computed: 12}},
		MaxHP:     100,
		HP:        80,
		MaxEnergy: 30,
		Energy:    30,
		Loadout:   actor.Loadout{Abilities: []string{"strike"}, Belt: []string{"health_potion"}},
		Targets:   []string{},
		Effects: []actor.Effect{{
			ID: "poisoned", Source: "b", Duration: 2,
			Tick: map[string]float64{"hp": -3},
		}},
		SwitchCharges: 2,
	}
}

func testSession() *combat.Session {
	return &combat.Session{
		Meta: &combat.SessionMeta{
			ID:         "sess-1",
			Active:     true,
			StartTime:  time.Unix(1700000000, 0).UTC(),
			Teams:      map[string][]string{"red": {"a"}, "blue": {"b"}},
			ActorsInfo: map[string]actor.Kind{"a": actor.KindPlayer, "b": actor.KindMonster},
			DeadActors: []string{},
			Rewards:    map[string]combat.Reward{},
			BattleType: combat.BattlePvE,
			Mode:       combat.Mode1v1,
			IsPvE:      true,
			LocationID: "forest",
			State:      combat.StateActive,
			Round:      3,
		},
		Actors: map[string]*actor.Actor{
			"a": testActor("a", "red"),
			"b": testActor("b", "blue"),
		},
	}
}

func TestCreateAndLoadSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	s := testSession()

	require.NoError(t, store.CreateSession(ctx, s))

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, s.Meta, loaded.Meta)
	assert.Equal(t, s.Actors, loaded.Actors)
}

func TestCreateSessionTwiceConflicts(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, testSession()))
	err := store.CreateSession(ctx, testSession())
	assert.True(t, errs.IsCode(err, errs.CodeConflictState))
}

func TestMetaHashLayout(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, store.CreateSession(context.Background(), testSession()))

	key := "combat:rbc:sess-1:meta"
	assert.Equal(t, "1", mr.HGet(key, "active"))
	assert.Equal(t, "1700000000", mr.HGet(key, "start_time"))
	assert.Equal(t, "", mr.HGet(key, "end_time"))
	assert.Equal(t, "pve", mr.HGet(key, "battle_type"))
	assert.Equal(t, "1v1", mr.HGet(key, "mode"))
	assert.Equal(t, "1", mr.HGet(key, "is_pve"))
	assert.Equal(t, "forest", mr.HGet(key, "location_id"))
	assert.Equal(t, "[]", mr.HGet(key, "dead_actors"))
	assert.Equal(t, "{}", mr.HGet(key, "rewards"))

	var teams map[string][]string
	require.NoError(t, json.Unmarshal([]byte(mr.HGet(key, "teams")), &teams))
	assert.Equal(t, []string{"a"}, teams["red"])

	blob, err := mr.Get("combat:rbc:sess-1:actor:a")
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(blob), &raw))
	for _, k := range []string{"hp_current", "energy_current", "targets", "switch_charges", "stats", "effects"} {
		assert.Contains(t, raw, k)
	}
}

func TestLoadMetaFromForeignProducer(t *testing.T) {
	store, mr := setupTestRedis(t)
	key := MetaKey("legacy")
	mr.HSet(key, "active", "0")
	mr.HSet(key, "start_time", "1700000000")
	mr.HSet(key, "end_time", "1700000100")
	mr.HSet(key, "winner", "red")
	mr.HSet(key, "teams", `{"red":["a"]}`)
	mr.HSet(key, "actors_info", `{"a":"player"}`)

	m, err := store.LoadMeta(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, combat.StateEnded, m.State)
	assert.Equal(t, "red", m.Winner)
	assert.Equal(t, int64(1700000100), m.EndTime.Unix())
	assert.Empty(t, m.DeadActors)
	assert.NotNil(t, m.Rewards)
}

func TestLoadMissingSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	_, err := store.LoadSession(context.Background(), "nope")
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestLoadSessionMissingActorIsInternal(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, store.CreateSession(context.Background(), testSession()))
	mr.Del(ActorKey("sess-1", "b"))

	_, err := store.LoadSession(context.Background(), "sess-1")
	assert.True(t, errs.IsCode(err, errs.CodeInternal))
}

func TestCommitStoresResultAndUnparksConsumedMoves(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	s := testSession()
	require.NoError(t, store.CreateSession(ctx, s))

	move := combat.Move{MoveID: "m-1", CharID: "a", Strategy: combat.StrategyExchange,
		Payload: json.RawMessage(`{"ability_id":"strike"}`)}
	require.NoError(t, store.SetPending(ctx, "sess-1", move))
	other := combat.Move{MoveID: "m-2", CharID: "b", Strategy: combat.StrategyExchange,
		Payload: json.RawMessage(`{"ability_id":"strike"}`)}
	require.NoError(t, store.SetPending(ctx, "sess-1", other))

	pending, err := store.Pending(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, move.MoveID, pending["a"].MoveID)

	s.Meta.Round = 4
	s.Actors["b"].HP = 50
	result := &combat.ActionResult{SessionID: "sess-1", MoveID: "m-3", Round: 3, State: combat.StateActive,
		Events: []combat.Event{{Seq: 1, Type: combat.EventHit, Actor: "a", Target: "b", Amount: 30}}}
	// b's parked move is not the one consumed, so it stays parked.
	stale := other
	stale.MoveID = "m-old"
	require.NoError(t, store.Commit(ctx, s, result, move, stale))

	assert.Empty(t, mr.HGet(PendingKey("sess-1"), "a"))
	pending, err = store.Pending(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, "m-2", pending["b"].MoveID)

	for _, id := range []string{"m-3", "m-1", "m-old"} {
		got, err := store.LoadResult(ctx, "sess-1", id)
		require.NoError(t, err)
		assert.Equal(t, result, got, id)
	}

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Meta.Round)
	assert.Equal(t, 50, loaded.Actors["b"].HP)
}

func TestCommitWithoutResultKeepsPending(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	s := testSession()
	require.NoError(t, store.CreateSession(ctx, s))
	move := combat.Move{MoveID: "m-1", CharID: "a", Strategy: combat.StrategyExchange,
		Payload: json.RawMessage(`{"ability_id":"strike"}`)}
	require.NoError(t, store.SetPending(ctx, "sess-1", move))

	require.NoError(t, store.Commit(ctx, s, nil))

	pending, err := store.Pending(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", pending["a"].MoveID)
}

func TestLoadResultMissing(t *testing.T) {
	store, _ := setupTestRedis(t)
	res, err := store.LoadResult(context.Background(), "sess-1", "m-404")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestKeysExpire(t *testing.T) {
	store, mr := setupTestRedis(t)
	store.WithTTL(time.Minute)
	require.NoError(t, store.CreateSession(context.Background(), testSession()))

	mr.FastForward(2 * time.Minute)
	_, err := store.LoadSession(context.Background(), "sess-1")
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestUpstreamFailure(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.LoadSession(context.Background(), "sess-1")
	assert.True(t, errs.IsCode(err, errs.CodeUpstreamUnavailable))
	assert.Error(t, store.Ping(context.Background()))
}

func TestWaitForConnection(t *testing.T) {
	store, mr := setupTestRedis(t)
	store.WithConnectRetry(3, 10*time.Millisecond)
	require.NoError(t, store.WaitForConnection(context.Background()))

	mr.Close()
	err := store.WaitForConnection(context.Background())
	assert.ErrorContains(t, err, "after 3 attempts")

	store.WithConnectRetry(100, 10*time.Millisecond)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = mr.Restart()
	}()
	require.NoError(t, store.WaitForConnection(context.Background()))
}

func TestWaitForConnectionHonoursContext(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := store.WaitForConnection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
