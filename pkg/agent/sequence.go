package agent

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/scenario"
)

// Defaults for the wait-retry loop.
const (
	DefaultWaitLimit  = 5
	DefaultRetryDelay = 2 * time.Second
)

// Options tunes a sequence policy. Zero values fall back to the
// defaults above.
type Options struct {
	WaitLimit  int
	RetryDelay time.Duration
	Matcher    MatchFunc
}

// SequencePolicy walks a scenario's steps in order. Each Decide call
// resolves the current step against the snapshot: a hit emits the
// step's action and moves on, a miss emits a wait so the runner can
// let the UI settle, and too many consecutive misses fail the run.
type SequencePolicy struct {
	steps      []scenario.Step
	waitLimit  int
	retryDelay time.Duration
	match      MatchFunc
}

// NewSequencePolicy builds a policy over the given steps.
func NewSequencePolicy(steps []scenario.Step, opts Options) *SequencePolicy {
	p := &SequencePolicy{
		steps:      steps,
		waitLimit:  opts.WaitLimit,
		retryDelay: opts.RetryDelay,
		match:      opts.Matcher,
	}
	if p.waitLimit <= 0 {
		p.waitLimit = DefaultWaitLimit
	}
	if p.retryDelay <= 0 {
		p.retryDelay = DefaultRetryDelay
	}
	if p.match == nil {
		p.match = ExactMatch
	}
	return p
}

// Name identifies the policy in logs and reports.
func (p *SequencePolicy) Name() string { return "sequence" }

// Decide resolves the current step against the snapshot. Assertions
// that hold consume no backend action, so the loop carries on to the
// next step within the same call.
func (p *SequencePolicy) Decide(snap *core.Snapshot, state State) (core.Action, State, error) {
	if state.Terminal() {
		return core.Terminate(), state, nil
	}

	var elements []*core.Element
	if snap != nil {
		elements = snap.Elements
	}

	for {
		if state.Step >= len(p.steps) {
			state.Phase = PhaseDone
			state.Waits = 0
			return core.Terminate(), state, nil
		}

		step := p.steps[state.Step]
		match := p.matcherFor(step)
		switch s := step.(type) {
		case *scenario.TapStep:
			if x, y, ok := s.Coordinates(); ok {
				return core.TapAt(x, y), advance(state), nil
			}
			el := match(elements, s.Target)
			if el == nil {
				action, next, skipped := p.miss(state, step, fmt.Sprintf("no element matches %s", s.Target.Describe()))
				if skipped {
					state = next
					continue
				}
				return action, next, nil
			}
			return core.Tap(el.ClickableAncestor()), advance(state), nil

		case *scenario.InputStep:
			if s.Target.IsEmpty() {
				return core.Input(nil, s.Text), advance(state), nil
			}
			el := match(elements, s.Target)
			if el == nil {
				action, next, skipped := p.miss(state, step, fmt.Sprintf("no element matches %s", s.Target.Describe()))
				if skipped {
					state = next
					continue
				}
				return action, next, nil
			}
			return core.Input(el, s.Text), advance(state), nil

		case *scenario.SwipeStep:
			if from, to, ok := s.Points(); ok {
				return core.Swipe(from, to, s.DurationMs), advance(state), nil
			}
			return core.SwipeDirection(s.Direction, s.DurationMs), advance(state), nil

		case *scenario.WaitStep:
			d := time.Duration(s.DurationMs) * time.Millisecond
			if d <= 0 {
				d = p.retryDelay
			}
			return core.WaitFor(d), advance(state), nil

		case *scenario.AssertStep:
			if err := s.Assertion().Check(snap); err != nil {
				action, next, skipped := p.miss(state, step, err.Error())
				if skipped {
					state = next
					continue
				}
				return action, next, nil
			}
			// Holds already, nothing for the session to do.
			state = advance(state)

		default:
			state.Phase = PhaseFailed
			state.Reason = fmt.Sprintf("unsupported step kind %q", step.Kind())
			return core.Terminate(), state, nil
		}
	}
}

// matcherFor honors a step's match override, falling back to the
// policy matcher.
func (p *SequencePolicy) matcherFor(step scenario.Step) MatchFunc {
	switch step.MatchMode() {
	case scenario.MatchFuzzy:
		return FuzzyMatch
	case scenario.MatchExact:
		return ExactMatch
	}
	return p.match
}

// miss handles a step the snapshot cannot satisfy. Below the wait limit
// it buys another retry; at the limit an optional step is skipped and
// anything else fails the run. skipped tells the caller to keep
// deciding within the same call.
func (p *SequencePolicy) miss(state State, step scenario.Step, reason string) (core.Action, State, bool) {
	if state.Waits >= p.waitLimit {
		if step.IsOptional() {
			return core.Action{}, advance(state), true
		}
		desc := step.Describe()
		if name := step.Label(); name != "" {
			desc = name
		}
		state.Phase = PhaseFailed
		state.Reason = fmt.Sprintf("step %d (%s): %s after %d retries", state.Step+1, desc, reason, state.Waits)
		return core.Terminate(), state, false
	}
	state.Waits++
	return core.WaitFor(p.retryDelay), state, false
}

// advance moves past the current step. The phase leaves Start on the
// first completed step and stays Step until the sequence ends.
func advance(state State) State {
	state.Phase = PhaseStep
	state.Step++
	state.Waits = 0
	return state
}
