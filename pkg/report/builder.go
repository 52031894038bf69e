package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/agent-runner/pkg/scenario"
)

// BuilderConfig carries the run metadata baked into the skeleton.
type BuilderConfig struct {
	Device        Device
	App           App
	RunnerVersion string
	Driver        string
}

// BuildSkeleton pre-creates the index and all scenario details in
// pending state, so a crash mid-run still leaves a readable report.
// The run gets a fresh uuid.
func BuildSkeleton(scenarios []*scenario.Scenario, cfg BuilderConfig) (*Index, []ScenarioDetail) {
	now := time.Now()
	index := &Index{
		Version:     Version,
		RunID:       uuid.NewString(),
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Device:      cfg.Device,
		App:         cfg.App,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.Driver,
		},
	}

	details := make([]ScenarioDetail, len(scenarios))
	for i, sc := range scenarios {
		id := scenarioID(i)
		policy := sc.Header.Policy.Kind
		if policy == "" {
			policy = "sequence"
		}
		index.Scenarios = append(index.Scenarios, ScenarioEntry{
			Index:      i,
			ID:         id,
			Name:       sc.Name(),
			SourceFile: sc.SourcePath,
			DataFile:   filepath.Join("scenarios", id+".json"),
			AssetsDir:  filepath.Join("assets", id),
			Policy:     policy,
			Status:     StatusPending,
		})
		details[i] = ScenarioDetail{
			ID:         id,
			Name:       sc.Name(),
			SourceFile: sc.SourcePath,
			Policy:     policy,
			Status:     StatusPending,
			Decisions:  []Decision{},
		}
	}
	index.Summary = Summary{Total: len(scenarios), Pending: len(scenarios)}

	return index, details
}

// WriteSkeleton writes the initial index and scenario files under
// outputDir, creating the directory tree.
func WriteSkeleton(outputDir string, index *Index, details []ScenarioDetail) error {
	if err := ensureDir(filepath.Join(outputDir, "scenarios")); err != nil {
		return fmt.Errorf("create scenarios dir: %w", err)
	}
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}

	for _, d := range details {
		if err := atomicWriteJSON(filepath.Join(outputDir, "scenarios", d.ID+".json"), d); err != nil {
			return fmt.Errorf("write scenario %s: %w", d.ID, err)
		}
		if err := ensureDir(filepath.Join(outputDir, "assets", d.ID)); err != nil {
			return fmt.Errorf("create assets dir for %s: %w", d.ID, err)
		}
	}

	if err := atomicWriteJSON(filepath.Join(outputDir, "report.json"), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func scenarioID(i int) string {
	return fmt.Sprintf("scenario-%03d", i)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// atomicWriteJSON writes via a temp file and rename, so a reader
// polling the path never sees a torn document.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
