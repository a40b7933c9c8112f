package agent

import "time"

// State is a node of the reasoning-loop state machine.
type State string

const (
	StateAwaitingEngine  State = "AWAITING_ENGINE"
	StateDispatchingTool State = "DISPATCHING_TOOL"
	StateInjectingResult State = "INJECTING_RESULT"
	StateFinalized       State = "FINALIZED"
	StateCorrecting      State = "CORRECTING"
	StateFailed          State = "FAILED"
	StateSucceeded       State = "SUCCEEDED"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateSucceeded
}

// Event describes one transition. Tool fields are set for DISPATCHING_TOOL
// and INJECTING_RESULT; Err only for FAILED.
type Event struct {
	RunID     string         `json:"run_id"`
	State     State          `json:"state"`
	Iteration int            `json:"iteration"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    string         `json:"result,omitempty"`
	Err       string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// Observer is called synchronously on every transition, in order.
type Observer func(Event)
