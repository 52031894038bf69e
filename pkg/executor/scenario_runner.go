package executor

import (
	"context"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devicelab-dev/agent-runner/pkg/agent"
	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/jsengine"
	"github.com/devicelab-dev/agent-runner/pkg/logger"
	"github.com/devicelab-dev/agent-runner/pkg/report"
	"github.com/devicelab-dev/agent-runner/pkg/scenario"
)

// scenarioRunner executes a single scenario.
type scenarioRunner struct {
	ctx     context.Context
	config  RunnerConfig
	factory SessionFactory
	sc      *scenario.Scenario
	writer  *report.ScenarioWriter
	id      string

	session  Session
	state    agent.State
	lastSnap *core.Snapshot
	// Round counters
	actions int
	waits   int
}

// Run drives the scenario to a terminal state and returns the result.
// The session is closed exactly once, on every path that opened it.
func (sr *scenarioRunner) Run() ScenarioResult {
	start := time.Now()
	sr.writer.Start()

	env := mergeEnv(sr.config.Env, sr.sc.Header.Env)

	policy, err := sr.buildPolicy(env)
	if err != nil {
		return sr.finish(start, core.StatusErrored, err.Error())
	}
	script, _ := policy.(*agent.ScriptPolicy)
	if script != nil {
		defer script.Close()
	}

	session, err := sr.openSession()
	if err != nil {
		return sr.finish(start, core.StatusErrored, err.Error())
	}
	sr.session = session
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close session: %v", err)
		}
	}()

	if script != nil {
		script.SetPlatform(session.Platform())
	}

	sr.state = agent.Start()
	status, errMsg := sr.loop(policy)
	if script != nil {
		if out := script.Outputs(); len(out) > 0 {
			logger.Info("Script outputs: %v", out)
		}
	}
	return sr.finish(start, status, errMsg)
}

// loop runs query-decide-apply rounds until the policy reaches a
// terminal state or a bound trips.
func (sr *scenarioRunner) loop(policy agent.Policy) (core.RunStatus, string) {
	for round := 0; !sr.state.Terminal(); round++ {
		if sr.ctx.Err() != nil {
			return core.StatusErrored, "run cancelled"
		}
		if round >= sr.config.MaxActions {
			err := core.ErrPolicyExhausted.WithMessage("no terminal state after %d actions", sr.config.MaxActions)
			return core.StatusFailed, err.Error()
		}

		snap, err := sr.session.Query()
		if err != nil {
			return core.StatusErrored, err.Error()
		}
		sr.lastSnap = snap

		roundStart := time.Now()
		action, next, err := policy.Decide(snap, sr.state)
		if err != nil {
			sr.writer.AddDecision(report.Decision{
				Action:   "decide",
				State:    sr.state.Describe(),
				Elements: snap.Len(),
				Duration: time.Since(roundStart).Milliseconds(),
				Error:    err.Error(),
			})
			return core.StatusErrored, err.Error()
		}

		applyErr := sr.perform(action)

		decision := report.Decision{
			Action:   action.Describe(),
			State:    next.Describe(),
			Elements: snap.Len(),
			Duration: time.Since(roundStart).Milliseconds(),
		}
		if applyErr != nil {
			decision.Error = applyErr.Error()
		}
		sr.writer.AddDecision(decision)
		if sr.config.OnDecision != nil {
			sr.config.OnDecision(round+1, decision.Action, decision.State, decision.Error)
		}

		if applyErr != nil {
			return core.StatusErrored, applyErr.Error()
		}
		sr.state = next
	}

	if sr.state.Phase == agent.PhaseFailed {
		return core.StatusFailed, sr.state.Reason
	}
	return core.StatusPassed, ""
}

// perform executes one action. Waits are honored locally without
// backend traffic. Terminate is best effort, the outcome is already
// decided when it arrives.
func (sr *scenarioRunner) perform(action core.Action) error {
	switch action.Kind {
	case core.ActionWait:
		sr.waits++
		sr.sleep(action.Wait)
		return nil
	case core.ActionTerminate:
		if err := sr.session.Apply(action); err != nil {
			logger.Warn("terminate: %v", err)
		}
		return nil
	default:
		if err := sr.session.Apply(action); err != nil {
			return err
		}
		sr.actions++
		return nil
	}
}

func (sr *scenarioRunner) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-sr.ctx.Done():
	case <-time.After(d):
	}
}

// openSession calls the factory with exponential backoff. Only
// connection failures are retried, anything else aborts immediately.
func (sr *scenarioRunner) openSession() (Session, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = sr.config.OpenRetryTimeout

	var session Session
	attempt := 0
	operation := func() error {
		attempt++
		s, err := sr.factory()
		if err != nil {
			if core.CategoryOf(err) != core.CategoryConnection {
				return backoff.Permanent(err)
			}
			logger.Warn("open session attempt %d: %v", attempt, err)
			return err
		}
		session = s
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, sr.ctx)); err != nil {
		if core.CategoryOf(err) == core.CategoryConnection {
			return nil, core.ErrTimeout.
				WithMessage("automation server not reachable after %s", sr.config.OpenRetryTimeout).
				WithCause(err)
		}
		return nil, err
	}
	return session, nil
}

// buildPolicy constructs the decision policy from the scenario header,
// expanding ${} references in step fields first.
func (sr *scenarioRunner) buildPolicy(env map[string]string) (agent.Policy, error) {
	if err := expandSteps(sr.sc, env); err != nil {
		return nil, err
	}

	spec := sr.sc.Header.Policy
	if spec.Kind == "script" {
		path := scenario.ResolveScript(sr.sc)
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, core.ErrInvalidScenario.WithMessage("read policy script %s: %v", path, err).WithCause(err)
		}
		policy, err := agent.NewScriptPolicy(sr.sc.Name(), string(source))
		if err != nil {
			return nil, err
		}
		policy.SetVariables(env)
		return policy, nil
	}

	opts := agent.Options{
		WaitLimit:  sr.config.WaitLimit,
		RetryDelay: sr.config.RetryDelay,
	}
	if spec.WaitLimit > 0 {
		opts.WaitLimit = spec.WaitLimit
	}
	if spec.RetryDelayMs > 0 {
		opts.RetryDelay = time.Duration(spec.RetryDelayMs) * time.Millisecond
	}
	if spec.Matching == scenario.MatchFuzzy {
		opts.Matcher = agent.FuzzyMatch
	}
	return agent.NewSequencePolicy(sr.sc.Steps, opts), nil
}

// finish captures artifacts, closes out the report entry and builds the
// result.
func (sr *scenarioRunner) finish(start time.Time, status core.RunStatus, errMsg string) ScenarioResult {
	sr.captureArtifacts(status)
	sr.writer.End(report.StatusOf(status), errMsg)

	return ScenarioResult{
		ID:         sr.id,
		Name:       sr.sc.Name(),
		Status:     status,
		Duration:   time.Since(start).Milliseconds(),
		Error:      errMsg,
		Actions:    sr.actions,
		Waits:      sr.waits,
		FinalState: sr.state.Describe(),
	}
}

// captureArtifacts saves a screenshot and the last hierarchy when the
// config asks for them at this status.
func (sr *scenarioRunner) captureArtifacts(status core.RunStatus) {
	if sr.session == nil || !sr.config.Artifacts.ShouldCapture(status) {
		return
	}

	if sr.config.Artifacts.Screenshot {
		if data, err := sr.session.Screenshot(); err != nil {
			logger.Warn("capture screenshot: %v", err)
		} else if len(data) > 0 {
			if _, err := sr.writer.SaveAttachment("screen.png", core.ContentTypePNG, data); err != nil {
				logger.Warn("save screenshot: %v", err)
			}
		}
	}

	if sr.config.Artifacts.Hierarchy && sr.lastSnap != nil && sr.lastSnap.Source != "" {
		if _, err := sr.writer.SaveAttachment("hierarchy.xml", core.ContentTypeXML, []byte(sr.lastSnap.Source)); err != nil {
			logger.Warn("save hierarchy: %v", err)
		}
	}
}

// expandSteps rewrites ${} references in step targets and texts using
// the merged environment.
func expandSteps(sc *scenario.Scenario, env map[string]string) error {
	eng := jsengine.New()
	defer eng.Close()
	for k, v := range env {
		eng.SetVariable(k, v)
	}

	expand := func(s *string) error {
		if *s == "" {
			return nil
		}
		out, err := eng.ExpandVariables(*s)
		if err != nil {
			return err
		}
		*s = out
		return nil
	}
	expandTarget := func(t *core.Target) error {
		if err := expand(&t.Identifier); err != nil {
			return err
		}
		if err := expand(&t.Label); err != nil {
			return err
		}
		return expand(&t.Desc)
	}

	for i, step := range sc.Steps {
		var err error
		switch s := step.(type) {
		case *scenario.TapStep:
			err = expandTarget(&s.Target)
		case *scenario.InputStep:
			if err = expandTarget(&s.Target); err == nil {
				err = expand(&s.Text)
			}
		case *scenario.AssertStep:
			if err = expandTarget(&s.Target); err == nil {
				err = expand(&s.Text)
			}
		}
		if err != nil {
			return core.ErrInvalidScenario.WithMessage("step %d: %v", i+1, err).WithCause(err)
		}
	}
	return nil
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
