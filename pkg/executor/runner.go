// Package executor drives scenarios against live driver sessions, one
// query-decide-apply round at a time, and writes the run report.
package executor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/agent"
	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/report"
	"github.com/devicelab-dev/agent-runner/pkg/scenario"
)

// Defaults applied by New when the config leaves them zero.
const (
	DefaultMaxActions       = 25
	DefaultOpenRetryTimeout = 30 * time.Second
)

// Session is the slice of a driver the executor needs: snapshot the
// screen, perform one action, shut down. *appium.Client and the mock
// driver both satisfy it.
type Session interface {
	Platform() string
	Query() (*core.Snapshot, error)
	Apply(action core.Action) error
	Screenshot() ([]byte, error)
	Close() error
}

// SessionFactory opens a fresh backend session. The runner calls it
// once per scenario and retries connection failures with exponential
// backoff.
type SessionFactory func() (Session, error)

// RunnerConfig configures the scenario runner.
type RunnerConfig struct {
	OutputDir  string // Report root, each run gets a subdirectory
	StopOnFail bool   // Skip remaining scenarios after the first failure

	// Policy tuning. Scenario headers override these per scenario.
	WaitLimit  int
	RetryDelay time.Duration

	// MaxActions is the safety ceiling on rounds per scenario.
	MaxActions int

	// OpenRetryTimeout bounds the backoff around session open.
	OpenRetryTimeout time.Duration

	// Artifacts controls screenshot/hierarchy capture on terminal states.
	Artifacts core.ArtifactConfig

	// Env feeds ${} expansion and script policies. Scenario headers
	// override individual keys.
	Env map[string]string

	// Device/App info for reports
	Device report.Device
	App    report.App

	// Runner metadata
	RunnerVersion string
	DriverName    string

	// Live progress callbacks
	OnScenarioStart func(idx, total int, name, file string)
	OnDecision      func(seq int, action, state, errMsg string)
	OnScenarioEnd   func(name string, status core.RunStatus, durationMs int64, errMsg string)
}

// RunResult contains the outcome of a run.
type RunResult struct {
	Status    core.RunStatus
	Total     int
	Passed    int
	Failed    int
	Errored   int
	Skipped   int
	Duration  int64 // Total duration in milliseconds
	ReportDir string
	Scenarios []ScenarioResult
}

// ScenarioResult contains the outcome of a single scenario.
type ScenarioResult struct {
	ID         string
	Name       string
	Status     core.RunStatus
	Duration   int64
	Error      string
	Actions    int    // Backend actions applied
	Waits      int    // Wait rounds honored locally
	FinalState string // Policy state at exit
}

// Runner executes scenarios sequentially, opening a fresh session for
// each one.
type Runner struct {
	config  RunnerConfig
	factory SessionFactory
}

// New creates a Runner. Zero tuning values fall back to defaults.
func New(factory SessionFactory, cfg RunnerConfig) *Runner {
	if cfg.WaitLimit <= 0 {
		cfg.WaitLimit = agent.DefaultWaitLimit
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = agent.DefaultRetryDelay
	}
	if cfg.MaxActions <= 0 {
		cfg.MaxActions = DefaultMaxActions
	}
	if cfg.OpenRetryTimeout <= 0 {
		cfg.OpenRetryTimeout = DefaultOpenRetryTimeout
	}
	return &Runner{config: cfg, factory: factory}
}

// Run executes all scenarios and writes the report under a fresh run
// directory. The returned result aggregates per-scenario outcomes.
func (r *Runner) Run(ctx context.Context, scenarios []*scenario.Scenario) (*RunResult, error) {
	index, details := report.BuildSkeleton(scenarios, report.BuilderConfig{
		Device:        r.config.Device,
		App:           r.config.App,
		RunnerVersion: r.config.RunnerVersion,
		Driver:        r.config.DriverName,
	})

	runDir := filepath.Join(r.config.OutputDir, index.RunID)
	if err := report.WriteSkeleton(runDir, index, details); err != nil {
		return nil, err
	}

	indexWriter := report.NewIndexWriter(runDir, index)
	indexWriter.Start()

	results := r.executeScenarios(ctx, scenarios, details, indexWriter, runDir)

	indexWriter.End()

	result := r.buildRunResult(results)
	result.ReportDir = runDir
	return result, nil
}

// executeScenarios runs scenarios one after another. Cancellation or
// StopOnFail marks the rest skipped.
func (r *Runner) executeScenarios(ctx context.Context, scenarios []*scenario.Scenario, details []report.ScenarioDetail, indexWriter *report.IndexWriter, runDir string) []ScenarioResult {
	results := make([]ScenarioResult, len(scenarios))

	total := len(scenarios)
	stopped := false
	for i := range scenarios {
		writer := report.NewScenarioWriter(&details[i], runDir, indexWriter)

		reason := ""
		if ctx.Err() != nil {
			reason = "run cancelled"
		} else if stopped {
			reason = "stopped after failure"
		}
		if reason != "" {
			writer.End(report.StatusSkipped, reason)
			results[i] = ScenarioResult{
				ID:     details[i].ID,
				Name:   details[i].Name,
				Status: core.StatusSkipped,
				Error:  reason,
			}
			if r.config.OnScenarioEnd != nil {
				r.config.OnScenarioEnd(details[i].Name, core.StatusSkipped, 0, reason)
			}
			continue
		}

		if r.config.OnScenarioStart != nil {
			r.config.OnScenarioStart(i, total, details[i].Name, scenarios[i].SourcePath)
		}

		sr := &scenarioRunner{
			ctx:     ctx,
			config:  r.config,
			factory: r.factory,
			sc:      scenarios[i],
			writer:  writer,
			id:      details[i].ID,
		}
		results[i] = sr.Run()

		if r.config.OnScenarioEnd != nil {
			res := results[i]
			r.config.OnScenarioEnd(res.Name, res.Status, res.Duration, res.Error)
		}
		if r.config.StopOnFail && results[i].Status != core.StatusPassed {
			stopped = true
		}
	}

	return results
}

// buildRunResult aggregates scenario results into a run result.
func (r *Runner) buildRunResult(results []ScenarioResult) *RunResult {
	result := &RunResult{
		Total:     len(results),
		Scenarios: results,
	}

	for _, sr := range results {
		result.Duration += sr.Duration
		switch sr.Status {
		case core.StatusPassed:
			result.Passed++
		case core.StatusFailed:
			result.Failed++
		case core.StatusErrored:
			result.Errored++
		case core.StatusSkipped:
			result.Skipped++
		}
	}

	switch {
	case result.Errored > 0:
		result.Status = core.StatusErrored
	case result.Failed > 0:
		result.Status = core.StatusFailed
	default:
		result.Status = core.StatusPassed
	}

	return result
}
