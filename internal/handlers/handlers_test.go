package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/internal/matchmaker"
	"github.com/jwebster45206/combat-engine/internal/services"
	"github.com/jwebster45206/combat-engine/internal/services/events"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelError,
}))

type fakeArena struct {
	joinRes  matchmaker.JoinResult
	joinErr  error
	pollRes  matchmaker.MatchStatus
	pollErr  error
	lastJoin [2]string
	lastMT   string
}

func (f *fakeArena) Join(ctx context.Context, charID, matchType string) (matchmaker.JoinResult, error) {
	f.lastJoin = [2]string{charID, matchType}
	return f.joinRes, f.joinErr
}

func (f *fakeArena) Cancel(ctx context.Context, charID, matchType string) (matchmaker.JoinResult, error) {
	f.lastMT = matchType
	if charID == "ghost" {
		return matchmaker.JoinResult{Status: matchmaker.JoinError, Message: "not queued"}, errs.NotFound("no queue entry for %s", charID)
	}
	return matchmaker.JoinResult{Status: matchmaker.JoinCancelled, Message: "left the queue"}, nil
}

func (f *fakeArena) Poll(ctx context.Context, charID string) (matchmaker.MatchStatus, error) {
	return f.pollRes, f.pollErr
}

type fakeCombat struct {
	submitRes *combat.ActionResult
	submitErr error
	lastPair  combat.ActionPair
	reason    combat.Reason
}

func (f *fakeCombat) StartPvE(ctx context.Context, charID, monsterID, locationID string) (string, error) {
	if monsterID == "dragon" {
		return "", errs.Validation("unknown monster %q", monsterID)
	}
	return "sess-1", nil
}

func (f *fakeCombat) Submit(ctx context.Context, sessionID string, pair combat.ActionPair) (*combat.ActionResult, error) {
	f.lastPair = pair
	return f.submitRes, f.submitErr
}

func (f *fakeCombat) Inspect(ctx context.Context, sessionID string) (*combat.SessionView, error) {
	if sessionID != "sess-1" {
		return nil, errs.NotFound("session %s", sessionID)
	}
	return &combat.SessionView{Meta: combat.SessionMeta{ID: "sess-1", State: combat.StateActive, Round: 3}}, nil
}

func (f *fakeCombat) Terminate(ctx context.Context, sessionID string, reason combat.Reason) (combat.ResolutionSummary, error) {
	f.reason = reason
	if reason == "" {
		return combat.ResolutionSummary{}, errs.Validation("unsupported termination reason %q", reason)
	}
	return combat.ResolutionSummary{SessionID: sessionID, Reason: reason}, nil
}

func newMux(arena Arena, c Combat) *http.ServeMux {
	mux := http.NewServeMux()
	NewArenaHandler(arena, testLogger).Register(mux)
	NewCombatHandler(c, testLogger).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestArenaJoin(t *testing.T) {
	gs := 120
	arena := &fakeArena{joinRes: matchmaker.JoinResult{Status: matchmaker.JoinJoined, GS: &gs, Message: "queued for 1v1"}}
	mux := newMux(arena, &fakeCombat{})

	rr := do(t, mux, http.MethodPost, "/v1/arena/queue", `{"char_id":"hero"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, [2]string{"hero", "1v1"}, arena.lastJoin)

	var res matchmaker.JoinResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, matchmaker.JoinJoined, res.Status)
	require.NotNil(t, res.GS)
	assert.Equal(t, 120, *res.GS)

	rr = do(t, mux, http.MethodPost, "/v1/arena/queue", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	arena.joinRes = matchmaker.JoinResult{Status: matchmaker.JoinError, Message: "match in progress"}
	arena.joinErr = errs.Conflict("hero is creating")
	rr = do(t, mux, http.MethodPost, "/v1/arena/queue", `{"char_id":"hero","match_type":"1v1"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, matchmaker.JoinError, res.Status)
	assert.Equal(t, "match in progress", res.Message)
}

func TestArenaCancel(t *testing.T) {
	arena := &fakeArena{}
	mux := newMux(arena, &fakeCombat{})

	rr := do(t, mux, http.MethodDelete, "/v1/arena/queue/hero?match_type=1v1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1v1", arena.lastMT)

	rr = do(t, mux, http.MethodDelete, "/v1/arena/queue/ghost", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestArenaPoll(t *testing.T) {
	sid := "sess-9"
	arena := &fakeArena{pollRes: matchmaker.MatchStatus{
		SessionID: &sid, IsShadow: true, Status: matchmaker.MatchCreatedShadow,
		Metadata: map[string]any{"match_type": "1v1"},
	}}
	mux := newMux(arena, &fakeCombat{})

	rr := do(t, mux, http.MethodGet, "/v1/arena/match/hero", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "created_shadow", body["status"])
	assert.Equal(t, true, body["is_shadow"])
	assert.Equal(t, "sess-9", body["session_id"])

	arena.pollRes = matchmaker.MatchStatus{}
	arena.pollErr = errs.NotFound("no queue entry for hero")
	rr = do(t, mux, http.MethodGet, "/v1/arena/match/hero", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	body = nil
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
}

func TestCombatStartAndInspect(t *testing.T) {
	mux := newMux(&fakeArena{}, &fakeCombat{})

	rr := do(t, mux, http.MethodPost, "/v1/combat", `{"char_id":"hero","monster_id":"goblin"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var started StartPvEResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&started))
	assert.Equal(t, "sess-1", started.SessionID)

	rr = do(t, mux, http.MethodPost, "/v1/combat", `{"char_id":"hero","monster_id":"dragon"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var errBody ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errBody))
	assert.Equal(t, errs.CodeValidationFailed, errBody.Code)

	rr = do(t, mux, http.MethodGet, "/v1/combat/sess-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view combat.SessionView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Equal(t, 3, view.Meta.Round)

	rr = do(t, mux, http.MethodGet, "/v1/combat/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCombatSubmit(t *testing.T) {
	c := &fakeCombat{submitRes: &combat.ActionResult{
		SessionID: "sess-1", MoveID: "m1", Round: 1, State: combat.StateActive,
		Events: []combat.Event{{Seq: 1, Type: combat.EventHit, Amount: 7}},
	}}
	mux := newMux(&fakeArena{}, c)
	body := `{"action_type":"exchange","primary_move":{"move_id":"m1","char_id":"hero","strategy":"exchange","payload":{"ability_id":"strike"}}}`

	rr := do(t, mux, http.MethodPost, "/v1/combat/sess-1/actions", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "m1", c.lastPair.PrimaryMove.MoveID)
	assert.JSONEq(t, `{"ability_id":"strike"}`, string(c.lastPair.PrimaryMove.Payload))
	var res combat.ActionResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.Len(t, res.Events, 1)
	assert.Equal(t, 7, res.Events[0].Amount)

	c.submitRes = &combat.ActionResult{SessionID: "sess-1", MoveID: "m1", Pending: true}
	rr = do(t, mux, http.MethodPost, "/v1/combat/sess-1/actions", body)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	c.submitRes, c.submitErr = nil, errs.Validation("not enough energy for %s", "fireball").With("move_id", "m1")
	rr = do(t, mux, http.MethodPost, "/v1/combat/sess-1/actions", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	res = combat.ActionResult{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "m1", res.MoveID)
	assert.Equal(t, "not enough energy for fireball", res.Error)
	assert.Empty(t, res.Events)

	c.submitErr = errs.Upstream(errors.New("dial tcp: refused"), "load session")
	rr = do(t, mux, http.MethodPost, "/v1/combat/sess-1/actions", body)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	res = combat.ActionResult{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.NotContains(t, res.Error, "refused")

	rr = do(t, mux, http.MethodPost, "/v1/combat/sess-1/actions", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCombatTerminate(t *testing.T) {
	c := &fakeCombat{}
	mux := newMux(&fakeArena{}, c)

	rr := do(t, mux, http.MethodPost, "/v1/combat/sess-1/terminate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, combat.ReasonAdmin, c.reason)

	rr = do(t, mux, http.MethodPost, "/v1/combat/sess-1/terminate", `{"reason":"forfeit"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, combat.ReasonForfeit, c.reason)

	rr = do(t, mux, http.MethodPost, "/v1/combat/sess-1/terminate", `{"reason":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		components     map[string]services.HealthChecker
		expectedStatus int
		expectedHealth string
	}{
		{
			name:           "all healthy",
			components:     map[string]services.HealthChecker{"redis": pinger{}, "sqlite": pinger{}},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name:           "unhealthy store",
			components:     map[string]services.HealthChecker{"redis": pinger{}, "sqlite": pinger{err: errors.New("locked")}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, NewHealthHandler(tt.components, testLogger), http.MethodGet, "/health", "")
			assert.Equal(t, tt.expectedStatus, rr.Code)

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.expectedHealth, resp.Status)
			assert.Equal(t, "combat-engine", resp.Service)
			assert.Len(t, resp.Components, len(tt.components))
		})
	}
}

type depths map[string]int

func (d depths) Depths(ctx context.Context) (map[string]int, error) {
	return d, nil
}

func TestHealthHandlerReportsQueueDepths(t *testing.T) {
	h := NewHealthHandler(map[string]services.HealthChecker{"redis": pinger{}}, testLogger).
		WithQueues(depths{"1v1": 3})
	rr := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, map[string]int{"1v1": 3}, resp.Queues)
}

func TestEventsStream(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	broadcaster := events.NewBroadcaster(rdb, testLogger)

	mux := http.NewServeMux()
	NewEventsHandler(broadcaster, testLogger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/combat/sess-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, _ := readEvent()
	require.Equal(t, "connected", name)

	require.NoError(t, broadcaster.PublishActionResolved(ctx, &combat.ActionResult{
		SessionID: "sess-1", MoveID: "m1", Round: 1, State: combat.StateActive,
	}))
	require.NoError(t, broadcaster.PublishSessionEnded(ctx, combat.ResolutionSummary{
		SessionID: "sess-1", Reason: combat.ReasonEliminated, Winner: "red",
	}))

	name, data := readEvent()
	assert.Equal(t, string(events.EventTypeActionResolved), name)
	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "m1", ev.MoveID)

	name, data = readEvent()
	assert.Equal(t, string(events.EventTypeSessionEnded), name)
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "red", ev.Data["winner"])
}
