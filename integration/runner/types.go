package runner

import (
	"encoding/json"
	"time"
)

// Step actions.
const (
	ActionJoin      = "join"
	ActionCancel    = "cancel"
	ActionPoll      = "poll"
	ActionWaitMatch = "wait_match"
	ActionStartPvE  = "start_pve"
	ActionSubmit    = "submit"
	ActionInspect   = "inspect"
	ActionTerminate = "terminate"
	ActionFightOut  = "fight_out"
)

// TestSuite defines a complete integration test scenario
type TestSuite struct {
	Name  string     `json:"name"`
	Steps []TestStep `json:"steps"`
}

// TestStep defines a single API interaction and its expected outcome.
// Steps that need a session use the one produced by the latest start_pve,
// poll or wait_match step.
type TestStep struct {
	Name      string          `json:"name,omitempty"`
	Action    string          `json:"action"`
	CharID    string          `json:"char_id,omitempty"`
	MatchType string          `json:"match_type,omitempty"`
	MonsterID string          `json:"monster_id,omitempty"`
	MoveID    string          `json:"move_id,omitempty"`
	Strategy  string          `json:"strategy,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Forced    bool            `json:"forced,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Expect    Expectations    `json:"expect"`
}

// Expectations defines what to check after a step executes
type Expectations struct {
	HTTPStatus *int    `json:"http_status,omitempty"`
	Status     *string `json:"status,omitempty"` // queue or poll status
	IsShadow   *bool   `json:"is_shadow,omitempty"`
	HasSession *bool   `json:"has_session,omitempty"`
	State      *string `json:"state,omitempty"` // session state
	Ended      *bool   `json:"ended,omitempty"`
	Pending    *bool   `json:"pending,omitempty"`
	HasError   *bool   `json:"has_error,omitempty"`
	MinEvents  *int    `json:"min_events,omitempty"`
	Reason     *string `json:"reason,omitempty"` // termination reason
}

// Observation is what a step saw, in the shape expectations are checked
// against.
type Observation struct {
	HTTPStatus int
	Status     string
	IsShadow   bool
	SessionID  string
	State      string
	Ended      bool
	Pending    bool
	Error      string
	Events     int
	Reason     string
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Name      string
	Results   []TestResult
	SessionID string
	Duration  time.Duration
	Error     error
}
