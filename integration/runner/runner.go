package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/combat-engine/pkg/combat"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// maxFightMoves bounds fight_out steps.
const maxFightMoves = 200

// Runner executes integration tests against a running combat-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}
	return suite, nil
}

// RunSuite executes a complete test suite
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) TestRunResult {
	start := time.Now()
	result := TestRunResult{
		Name:    suite.Name,
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	for i, step := range suite.Steps {
		if step.Name == "" {
			step.Name = step.Action
		}
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		stepStart := time.Now()
		obs, err := r.runStep(ctx, &result, step)
		if err == nil {
			err = Check(step.Expect, obs)
		}
		res := TestResult{
			TestName: suite.Name,
			StepName: step.Name,
			Success:  err == nil,
			Error:    err,
			Duration: time.Since(stepStart),
		}
		result.Results = append(result.Results, res)

		if err != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, err)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, err)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, res.Duration)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runStep(ctx context.Context, run *TestRunResult, step TestStep) (Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	switch step.Action {
	case ActionJoin:
		var out struct {
			Status string `json:"status"`
		}
		code, err := r.do(ctx, http.MethodPost, "/v1/arena/queue",
			map[string]string{"char_id": step.CharID, "match_type": step.MatchType}, &out)
		return Observation{HTTPStatus: code, Status: out.Status}, err

	case ActionCancel:
		var out struct {
			Status string `json:"status"`
		}
		path := "/v1/arena/queue/" + step.CharID
		if step.MatchType != "" {
			path += "?match_type=" + step.MatchType
		}
		code, err := r.do(ctx, http.MethodDelete, path, nil, &out)
		return Observation{HTTPStatus: code, Status: out.Status}, err

	case ActionPoll:
		obs, err := r.poll(ctx, step.CharID)
		if obs.SessionID != "" {
			run.SessionID = obs.SessionID
		}
		return obs, err

	case ActionWaitMatch:
		obs, err := r.WaitForMatch(ctx, step.CharID)
		if obs.SessionID != "" {
			run.SessionID = obs.SessionID
		}
		return obs, err

	case ActionStartPvE:
		var out struct {
			SessionID string `json:"session_id"`
		}
		code, err := r.do(ctx, http.MethodPost, "/v1/combat",
			map[string]string{"char_id": step.CharID, "monster_id": step.MonsterID}, &out)
		if out.SessionID != "" {
			run.SessionID = out.SessionID
		}
		return Observation{HTTPStatus: code, SessionID: out.SessionID}, err

	case ActionSubmit:
		if run.SessionID == "" {
			return Observation{}, fmt.Errorf("no session to submit to")
		}
		return r.submit(ctx, run.SessionID, step)

	case ActionFightOut:
		if run.SessionID == "" {
			return Observation{}, fmt.Errorf("no session to fight in")
		}
		return r.fightOut(ctx, run.SessionID, step)

	case ActionInspect:
		if run.SessionID == "" {
			return Observation{}, fmt.Errorf("no session to inspect")
		}
		var view combat.SessionView
		code, err := r.do(ctx, http.MethodGet, "/v1/combat/"+run.SessionID, nil, &view)
		return Observation{
			HTTPStatus: code,
			SessionID:  view.Meta.ID,
			State:      string(view.Meta.State),
			Ended:      view.Meta.State == combat.StateEnded,
			IsShadow:   view.Meta.IsShadow,
			Reason:     string(view.Meta.EndReason),
		}, err

	case ActionTerminate:
		if run.SessionID == "" {
			return Observation{}, fmt.Errorf("no session to terminate")
		}
		var summary combat.ResolutionSummary
		code, err := r.do(ctx, http.MethodPost, "/v1/combat/"+run.SessionID+"/terminate",
			map[string]string{"reason": step.Reason}, &summary)
		return Observation{HTTPStatus: code, Reason: string(summary.Reason), Ended: code == http.StatusOK}, err
	}
	return Observation{}, fmt.Errorf("unknown action %q", step.Action)
}

func (r *Runner) poll(ctx context.Context, charID string) (Observation, error) {
	var out struct {
		SessionID *string `json:"session_id"`
		IsShadow  bool    `json:"is_shadow"`
		Status    string  `json:"status"`
	}
	code, err := r.do(ctx, http.MethodGet, "/v1/arena/match/"+charID, nil, &out)
	obs := Observation{HTTPStatus: code, Status: out.Status, IsShadow: out.IsShadow}
	if out.SessionID != nil {
		obs.SessionID = *out.SessionID
	}
	return obs, err
}

func (r *Runner) submit(ctx context.Context, sessionID string, step TestStep) (Observation, error) {
	moveID := step.MoveID
	if moveID == "" {
		moveID = uuid.NewString()
	}
	strategy := combat.Strategy(step.Strategy)
	if strategy == "" {
		strategy = combat.StrategyExchange
	}
	pair := combat.ActionPair{
		ActionType: strategy,
		PrimaryMove: combat.Move{
			MoveID:   moveID,
			CharID:   step.CharID,
			Strategy: strategy,
			Payload:  step.Payload,
		},
		IsForced: step.Forced,
	}
	var res combat.ActionResult
	code, err := r.do(ctx, http.MethodPost, "/v1/combat/"+sessionID+"/actions", pair, &res)
	return Observation{
		HTTPStatus: code,
		SessionID:  res.SessionID,
		State:      string(res.State),
		Ended:      res.Ended,
		Pending:    res.Pending,
		Error:      res.Error,
		Events:     len(res.Events),
	}, err
}

// fightOut submits the step's move repeatedly until the session ends.
func (r *Runner) fightOut(ctx context.Context, sessionID string, step TestStep) (Observation, error) {
	step.MoveID = ""
	var total int
	for range maxFightMoves {
		obs, err := r.submit(ctx, sessionID, step)
		if err != nil {
			return obs, err
		}
		if obs.HTTPStatus != http.StatusOK {
			return obs, fmt.Errorf("submit returned %d: %s", obs.HTTPStatus, obs.Error)
		}
		total += obs.Events
		if obs.Ended {
			obs.Events = total
			return obs, nil
		}
	}
	return Observation{}, fmt.Errorf("session %s did not end after %d moves", sessionID, maxFightMoves)
}

// do sends a JSON request and decodes the JSON response into out whatever
// the status. Only transport failures are errors.
func (r *Runner) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response %q: %w", string(data), err)
		}
	}
	return resp.StatusCode, nil
}

// Check compares an observation with the step's expectations.
func Check(exp Expectations, obs Observation) error {
	var failures []string
	if exp.HTTPStatus != nil && *exp.HTTPStatus != obs.HTTPStatus {
		failures = append(failures, fmt.Sprintf("http status: expected %d, got %d", *exp.HTTPStatus, obs.HTTPStatus))
	}
	if exp.Status != nil && *exp.Status != obs.Status {
		failures = append(failures, fmt.Sprintf("status: expected %q, got %q", *exp.Status, obs.Status))
	}
	if exp.IsShadow != nil && *exp.IsShadow != obs.IsShadow {
		failures = append(failures, fmt.Sprintf("is_shadow: expected %v, got %v", *exp.IsShadow, obs.IsShadow))
	}
	if exp.HasSession != nil && *exp.HasSession != (obs.SessionID != "") {
		failures = append(failures, fmt.Sprintf("session: expected present=%v, got %q", *exp.HasSession, obs.SessionID))
	}
	if exp.State != nil && *exp.State != obs.State {
		failures = append(failures, fmt.Sprintf("state: expected %q, got %q", *exp.State, obs.State))
	}
	if exp.Ended != nil && *exp.Ended != obs.Ended {
		failures = append(failures, fmt.Sprintf("ended: expected %v, got %v", *exp.Ended, obs.Ended))
	}
	if exp.Pending != nil && *exp.Pending != obs.Pending {
		failures = append(failures, fmt.Sprintf("pending: expected %v, got %v", *exp.Pending, obs.Pending))
	}
	if exp.HasError != nil && *exp.HasError != (obs.Error != "") {
		failures = append(failures, fmt.Sprintf("error: expected present=%v, got %q", *exp.HasError, obs.Error))
	}
	if exp.MinEvents != nil && obs.Events < *exp.MinEvents {
		failures = append(failures, fmt.Sprintf("events: expected at least %d, got %d", *exp.MinEvents, obs.Events))
	}
	if exp.Reason != nil && *exp.Reason != obs.Reason {
		failures = append(failures, fmt.Sprintf("reason: expected %q, got %q", *exp.Reason, obs.Reason))
	}
	if len(failures) > 0 {
		return fmt.Errorf("%s", strings.Join(failures, "; "))
	}
	return nil
}
