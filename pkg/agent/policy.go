// Package agent implements the decision engine that drives a session:
// a policy reads UI snapshots and decides, one action at a time, what
// happens next.
package agent

import (
	"fmt"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// Phase is the lifecycle position of a policy.
type Phase string

// Phase constants. Done and Failed are terminal.
const (
	PhaseStart  Phase = "start"
	PhaseStep   Phase = "step"
	PhaseDone   Phase = "done"
	PhaseFailed Phase = "failed"
)

// State is the policy state threaded through consecutive decisions.
// Decide never mutates the state it is given; every call returns the
// successor value.
type State struct {
	Phase Phase `json:"phase"`
	// Step counts completed steps.
	Step int `json:"step"`
	// Waits counts consecutive wait retries at the current step. It
	// resets to zero whenever the policy makes progress.
	Waits int `json:"waits"`
	// Reason explains a Failed phase.
	Reason string `json:"reason,omitempty"`
	// Custom is scratch space for script policies.
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Start returns the initial state.
func Start() State {
	return State{Phase: PhaseStart}
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool {
	return s.Phase == PhaseDone || s.Phase == PhaseFailed
}

// Describe renders the state for logs and reports.
func (s State) Describe() string {
	switch s.Phase {
	case PhaseStart:
		return "Start"
	case PhaseStep:
		return fmt.Sprintf("Step(%d)", s.Step)
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		if s.Reason != "" {
			return fmt.Sprintf("Failed: %s", s.Reason)
		}
		return "Failed"
	}
	return string(s.Phase)
}

// Policy decides the next action from a snapshot. Implementations must
// be pure: no backend traffic, no mutation of the snapshot or the
// incoming state. Everything a decision needs is in its two arguments,
// which is what makes policies replayable and testable offline.
type Policy interface {
	Name() string
	Decide(snap *core.Snapshot, state State) (core.Action, State, error)
}
