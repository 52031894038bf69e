package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// IndexWriter provides thread-safe updates to the run index. Scenario
// goroutines report through it concurrently.
type IndexWriter struct {
	mu    sync.Mutex
	path  string
	index *Index
}

// NewIndexWriter creates a writer over an existing index.
func NewIndexWriter(outputDir string, index *Index) *IndexWriter {
	return &IndexWriter{
		path:  filepath.Join(outputDir, "report.json"),
		index: index,
	}
}

// ScenarioUpdate is a partial update to one scenario entry. Nil fields
// leave the entry's value alone.
type ScenarioUpdate struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
	Duration  *int64
	Error     string
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now
	w.flushLocked()
}

// UpdateScenario applies an update to a scenario entry and rewrites
// the index.
func (w *IndexWriter) UpdateScenario(id string, update ScenarioUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.index.Scenarios {
		if w.index.Scenarios[i].ID != id {
			continue
		}
		e := &w.index.Scenarios[i]
		e.Status = update.Status
		if update.StartTime != nil {
			e.StartTime = update.StartTime
		}
		if update.EndTime != nil {
			e.EndTime = update.EndTime
		}
		if update.Duration != nil {
			e.Duration = update.Duration
		}
		if update.Error != "" {
			e.Error = update.Error
		}
		e.UpdateSeq++
		break
	}
	w.flushLocked()
}

// End marks the run as complete and derives the final status from the
// scenario entries.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.runStatusLocked()
	w.flushLocked()
}

// Index returns the index for reading.
func (w *IndexWriter) Index() *Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

func (w *IndexWriter) flushLocked() {
	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.summaryLocked()
	atomicWriteJSON(w.path, w.index)
}

func (w *IndexWriter) summaryLocked() Summary {
	var s Summary
	for _, e := range w.index.Scenarios {
		s.Total++
		switch e.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusErrored:
			s.Errored++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

func (w *IndexWriter) runStatusLocked() Status {
	status := StatusPassed
	for _, e := range w.index.Scenarios {
		switch e.Status {
		case StatusFailed:
			return StatusFailed
		case StatusErrored:
			status = StatusErrored
		case StatusPassed, StatusSkipped:
		default:
			// Still pending or running means the run never finished.
			status = StatusErrored
		}
	}
	return status
}

// ScenarioWriter owns one scenario's detail file. A single run
// goroutine writes it, so no lock is needed; index updates go through
// the shared IndexWriter.
type ScenarioWriter struct {
	detail    *ScenarioDetail
	path      string
	assetsDir string
	relAssets string
	index     *IndexWriter
}

// NewScenarioWriter creates a writer for one scenario under outputDir.
func NewScenarioWriter(detail *ScenarioDetail, outputDir string, index *IndexWriter) *ScenarioWriter {
	assetsDir := filepath.Join(outputDir, "assets", detail.ID)
	ensureDir(assetsDir)

	return &ScenarioWriter{
		detail:    detail,
		path:      filepath.Join(outputDir, "scenarios", detail.ID+".json"),
		assetsDir: assetsDir,
		relAssets: filepath.Join("assets", detail.ID),
		index:     index,
	}
}

// Start marks the scenario as started.
func (w *ScenarioWriter) Start() {
	now := time.Now()
	w.detail.Status = StatusRunning
	w.detail.StartTime = now
	w.flush()
	if w.index != nil {
		w.index.UpdateScenario(w.detail.ID, ScenarioUpdate{Status: StatusRunning, StartTime: &now})
	}
}

// AddDecision appends one decision to the timeline and rewrites the
// detail file, so a crash loses at most the round in flight.
func (w *ScenarioWriter) AddDecision(d Decision) {
	d.Seq = len(w.detail.Decisions) + 1
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	w.detail.Decisions = append(w.detail.Decisions, d)
	w.flush()
}

// SaveAttachment writes an artifact into the scenario's assets
// directory and records it on the detail. The recorded path is
// relative to the run directory.
func (w *ScenarioWriter) SaveAttachment(name, contentType string, data []byte) (core.Attachment, error) {
	if err := os.WriteFile(filepath.Join(w.assetsDir, name), data, 0o644); err != nil {
		return core.Attachment{}, fmt.Errorf("save attachment %s: %w", name, err)
	}

	att := core.Attachment{
		Name:        name,
		ContentType: contentType,
		Path:        filepath.Join(w.relAssets, name),
	}
	w.detail.Attachments = append(w.detail.Attachments, att)
	w.flush()
	return att, nil
}

// End marks the scenario as finished.
func (w *ScenarioWriter) End(status Status, errMsg string) {
	now := time.Now()
	w.detail.Status = status
	w.detail.EndTime = &now
	w.detail.Error = errMsg
	if !w.detail.StartTime.IsZero() {
		duration := now.Sub(w.detail.StartTime).Milliseconds()
		w.detail.Duration = &duration
	}
	w.flush()
	if w.index != nil {
		w.index.UpdateScenario(w.detail.ID, ScenarioUpdate{
			Status:   status,
			EndTime:  &now,
			Duration: w.detail.Duration,
			Error:    errMsg,
		})
	}
}

func (w *ScenarioWriter) flush() {
	atomicWriteJSON(w.path, w.detail)
}
