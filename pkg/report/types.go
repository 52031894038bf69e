// Package report writes run results to disk as they happen.
//
// Layout under the output directory:
//   - report.json: run index (small, frequently updated, mutex-protected)
//   - scenarios/scenario-XXX.json: per-scenario decision timelines
//   - assets/scenario-XXX/: captured artifacts (screenshots, hierarchies)
//
// The index is the single source of truth for status. Consumers poll
// report.json and fetch scenario details only when their updateSeq
// moves.
package report

import (
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents an execution status in report JSON.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
	StatusSkipped Status = "skipped"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusErrored || s == StatusSkipped
}

// StatusOf converts a run status into its report representation.
func StatusOf(s core.RunStatus) Status {
	switch s {
	case core.StatusRunning:
		return StatusRunning
	case core.StatusPassed:
		return StatusPassed
	case core.StatusFailed:
		return StatusFailed
	case core.StatusErrored:
		return StatusErrored
	case core.StatusSkipped:
		return StatusSkipped
	default:
		return StatusPending
	}
}

// Index is the run-level report file binding everything together.
type Index struct {
	Version     string          `json:"version"`
	RunID       string          `json:"runId"`
	UpdateSeq   uint64          `json:"updateSeq"`
	Status      Status          `json:"status"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Device      Device          `json:"device"`
	App         App             `json:"app"`
	Runner      RunnerInfo      `json:"runner"`
	Summary     Summary         `json:"summary"`
	Scenarios   []ScenarioEntry `json:"scenarios"`
}

// Device identifies the device the run used.
type Device struct {
	Serial    string `json:"serial"`
	Platform  string `json:"platform"`
	OSVersion string `json:"osVersion,omitempty"`
	Model     string `json:"model,omitempty"`
}

// App identifies the application under test.
type App struct {
	Package  string `json:"package"`
	Activity string `json:"activity,omitempty"`
}

// RunnerInfo records which runner build produced the report.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"`
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// ScenarioEntry is the index entry for one scenario, kept minimal so
// the index stays cheap to rewrite.
type ScenarioEntry struct {
	Index      int        `json:"index"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SourceFile string     `json:"sourceFile"`
	DataFile   string     `json:"dataFile"`
	AssetsDir  string     `json:"assetsDir"`
	Policy     string     `json:"policy"`
	Status     Status     `json:"status"`
	UpdateSeq  uint64     `json:"updateSeq"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Duration   *int64     `json:"duration,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ScenarioDetail is the per-scenario file with the full decision
// timeline.
type ScenarioDetail struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	SourceFile  string            `json:"sourceFile"`
	Policy      string            `json:"policy"`
	Status      Status            `json:"status"`
	StartTime   time.Time         `json:"startTime"`
	EndTime     *time.Time        `json:"endTime,omitempty"`
	Duration    *int64            `json:"duration,omitempty"`
	Error       string            `json:"error,omitempty"`
	Decisions   []Decision        `json:"decisions"`
	Attachments []core.Attachment `json:"attachments,omitempty"`
}

// Decision is one query-decide-apply round.
type Decision struct {
	Seq      int       `json:"seq"`
	Action   string    `json:"action"`
	State    string    `json:"state"`
	Elements int       `json:"elements"`
	Time     time.Time `json:"time"`
	Duration int64     `json:"duration"`
	Error    string    `json:"error,omitempty"`
}
