package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/report"
	"github.com/devicelab-dev/agent-runner/pkg/scenario"
)

// fakeSession serves canned snapshots and records everything applied.
type fakeSession struct {
	snapshots []*core.Snapshot // served in order, the last repeats
	queries   int
	applied   []core.Action
	closes    int
	queryErr  error
	applyErr  error
	shot      []byte
}

func (s *fakeSession) Platform() string { return "android" }

func (s *fakeSession) Query() (*core.Snapshot, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	idx := s.queries
	if idx >= len(s.snapshots) {
		idx = len(s.snapshots) - 1
	}
	s.queries++
	return s.snapshots[idx], nil
}

func (s *fakeSession) Apply(action core.Action) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, action)
	return nil
}

func (s *fakeSession) Screenshot() ([]byte, error) { return s.shot, nil }

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

func (s *fakeSession) appliedKinds() []core.ActionKind {
	var kinds []core.ActionKind
	for _, a := range s.applied {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func tabSnapshot(tabs ...string) *core.Snapshot {
	var elements []*core.Element
	for i, tab := range tabs {
		container := &core.Element{
			Role:      "android.widget.LinearLayout",
			Clickable: true,
			Enabled:   true,
			Displayed: true,
			Bounds:    core.Bounds{X: i * 360, Y: 1900, Width: 360, Height: 120},
		}
		label := &core.Element{
			Role:      "android.widget.TextView",
			Label:     tab,
			Enabled:   true,
			Displayed: true,
			Parent:    container,
			Depth:     1,
			Bounds:    core.Bounds{X: i*360 + 80, Y: 1920, Width: 200, Height: 80},
		}
		elements = append(elements, container, label)
	}
	return &core.Snapshot{
		Elements:   elements,
		Activity:   ".DeskClock",
		Source:     "<hierarchy/>",
		CapturedAt: time.Now(),
	}
}

func parseScenario(t *testing.T, src string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	return sc
}

func testConfig(t *testing.T) RunnerConfig {
	t.Helper()
	return RunnerConfig{
		OutputDir:  t.TempDir(),
		RetryDelay: time.Millisecond,
		Device:     report.Device{Serial: "emulator-5554", Platform: "android"},
		App:        report.App{Package: "com.android.deskclock"},
		DriverName: "fake",
	}
}

func factoryFor(s *fakeSession) SessionFactory {
	return func() (Session, error) { return s, nil }
}

const clockYAML = `name: clock tabs
appPackage: com.android.deskclock
---
- tap: Clock
- tap: Timer
- tap: Alarm
`

func TestRunner_ClockTabWalk(t *testing.T) {
	snap := tabSnapshot("Clock", "Timer", "Alarm")
	session := &fakeSession{snapshots: []*core.Snapshot{snap}}

	cfg := testConfig(t)
	var trace []string
	cfg.OnDecision = func(seq int, action, state, errMsg string) {
		trace = append(trace, state)
	}

	runner := New(factoryFor(session), cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusPassed {
		t.Fatalf("expected passed, got %v (%q)", result.Status, result.Scenarios[0].Error)
	}
	if result.Passed != 1 || result.Total != 1 {
		t.Errorf("expected 1/1 passed, got %d/%d", result.Passed, result.Total)
	}

	// Three taps on the clickable containers, then a terminate.
	kinds := session.appliedKinds()
	want := []core.ActionKind{core.ActionTap, core.ActionTap, core.ActionTap, core.ActionTerminate}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d applied actions, got %d (%v)", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("action %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
	for i, containerIdx := range []int{0, 2, 4} {
		if session.applied[i].Target != snap.Elements[containerIdx] {
			t.Errorf("tap %d should target element %d", i, containerIdx)
		}
	}

	if got := strings.Join(trace, " "); got != "Step(1) Step(2) Step(3) Done" {
		t.Errorf("unexpected state trace: %q", got)
	}
	if session.closes != 1 {
		t.Errorf("expected exactly 1 close, got %d", session.closes)
	}

	res := result.Scenarios[0]
	if res.Actions != 3 || res.Waits != 0 {
		t.Errorf("expected 3 actions and 0 waits, got %d/%d", res.Actions, res.Waits)
	}
	if res.FinalState != "Done" {
		t.Errorf("expected final state Done, got %q", res.FinalState)
	}

	// The report index and detail should land on disk.
	data, err := os.ReadFile(filepath.Join(result.ReportDir, "report.json"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	var index report.Index
	if err := json.Unmarshal(data, &index); err != nil {
		t.Fatalf("unmarshal index: %v", err)
	}
	if index.Status != report.StatusPassed {
		t.Errorf("index status: expected passed, got %s", index.Status)
	}
	if index.Summary.Passed != 1 {
		t.Errorf("expected summary passed=1, got %d", index.Summary.Passed)
	}

	data, err = os.ReadFile(filepath.Join(result.ReportDir, "scenarios", "scenario-000.json"))
	if err != nil {
		t.Fatalf("read detail: %v", err)
	}
	var detail report.ScenarioDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.Decisions) != 4 {
		t.Errorf("expected 4 decisions recorded, got %d", len(detail.Decisions))
	}
}

func TestRunner_MissingTabFailsAfterWaits(t *testing.T) {
	// Timer tab is absent, so step 2 exhausts its retries.
	snap := tabSnapshot("Clock", "Alarm")
	session := &fakeSession{
		snapshots: []*core.Snapshot{snap},
		shot:      []byte("fake png"),
	}

	cfg := testConfig(t)
	cfg.Artifacts = core.DefaultArtifactConfig()

	runner := New(factoryFor(session), cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusFailed {
		t.Fatalf("expected failed, got %v", result.Status)
	}

	res := result.Scenarios[0]
	if res.Waits != 5 {
		t.Errorf("expected 5 waits before giving up, got %d", res.Waits)
	}
	if res.Actions != 1 {
		t.Errorf("expected 1 applied action, got %d", res.Actions)
	}
	if !strings.Contains(res.Error, "Timer") {
		t.Errorf("error should name the missing tab: %q", res.Error)
	}

	kinds := session.appliedKinds()
	if len(kinds) != 2 || kinds[0] != core.ActionTap || kinds[1] != core.ActionTerminate {
		t.Errorf("expected tap then terminate on the backend, got %v", kinds)
	}
	if session.closes != 1 {
		t.Errorf("expected exactly 1 close, got %d", session.closes)
	}

	// Failure artifacts are captured into the scenario assets dir.
	assets := filepath.Join(result.ReportDir, "assets", "scenario-000")
	if _, err := os.Stat(filepath.Join(assets, "screen.png")); err != nil {
		t.Errorf("expected screenshot artifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(assets, "hierarchy.xml")); err != nil {
		t.Errorf("expected hierarchy artifact: %v", err)
	}
}

func TestRunner_ActionCeiling(t *testing.T) {
	session := &fakeSession{snapshots: []*core.Snapshot{tabSnapshot("Clock", "Timer", "Alarm")}}

	cfg := testConfig(t)
	cfg.MaxActions = 2

	runner := New(factoryFor(session), cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusFailed {
		t.Fatalf("expected failed, got %v", result.Status)
	}
	if !strings.Contains(result.Scenarios[0].Error, "after 2 actions") {
		t.Errorf("error should mention the ceiling: %q", result.Scenarios[0].Error)
	}
	if session.closes != 1 {
		t.Errorf("expected exactly 1 close, got %d", session.closes)
	}
}

func TestRunner_OpenRetriesConnectionErrors(t *testing.T) {
	session := &fakeSession{snapshots: []*core.Snapshot{tabSnapshot("Clock", "Timer", "Alarm")}}

	attempts := 0
	factory := func() (Session, error) {
		attempts++
		if attempts == 1 {
			return nil, core.ErrServerUnreachable
		}
		return session, nil
	}

	cfg := testConfig(t)
	cfg.OpenRetryTimeout = 10 * time.Second

	runner := New(factory, cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusPassed {
		t.Fatalf("expected passed after retry, got %v (%q)", result.Status, result.Scenarios[0].Error)
	}
	if attempts != 2 {
		t.Errorf("expected 2 open attempts, got %d", attempts)
	}
}

func TestRunner_OpenRetryWindowExpires(t *testing.T) {
	attempts := 0
	factory := func() (Session, error) {
		attempts++
		return nil, core.ErrServerUnreachable
	}

	cfg := testConfig(t)
	cfg.OpenRetryTimeout = 10 * time.Millisecond

	runner := New(factory, cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusErrored {
		t.Fatalf("expected errored, got %v", result.Status)
	}
	// A 10ms window cannot fit the first backoff interval, so the retry
	// loop gives up right after the initial attempt.
	if attempts != 1 {
		t.Errorf("expected 1 open attempt, got %d", attempts)
	}
	if !strings.Contains(result.Scenarios[0].Error, "not reachable after") {
		t.Errorf("error should report the exhausted retry window: %q", result.Scenarios[0].Error)
	}
}

func TestRunner_ConfigErrorNotRetried(t *testing.T) {
	attempts := 0
	factory := func() (Session, error) {
		attempts++
		return nil, core.ErrInvalidCapabilities.WithMessage("appium:deviceName: required")
	}

	cfg := testConfig(t)
	cfg.OpenRetryTimeout = 10 * time.Second

	runner := New(factory, cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusErrored {
		t.Fatalf("expected errored, got %v", result.Status)
	}
	if attempts != 1 {
		t.Errorf("config errors should not be retried, got %d attempts", attempts)
	}
	if !strings.Contains(result.Scenarios[0].Error, "deviceName") {
		t.Errorf("unexpected error: %q", result.Scenarios[0].Error)
	}
}

func TestRunner_StopOnFail(t *testing.T) {
	calls := 0
	factory := func() (Session, error) {
		calls++
		return &fakeSession{snapshots: []*core.Snapshot{tabSnapshot("Clock")}}, nil
	}

	cfg := testConfig(t)
	cfg.StopOnFail = true
	cfg.WaitLimit = 1

	runner := New(factory, cfg)
	scenarios := []*scenario.Scenario{
		parseScenario(t, clockYAML),
		parseScenario(t, clockYAML),
	}
	result, err := runner.Run(context.Background(), scenarios)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Failed != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 failed and 1 skipped, got %d/%d", result.Failed, result.Skipped)
	}
	if result.Scenarios[1].Error != "stopped after failure" {
		t.Errorf("unexpected skip reason: %q", result.Scenarios[1].Error)
	}
	if calls != 1 {
		t.Errorf("expected 1 session, got %d", calls)
	}
}

func TestRunner_WaitStepStaysLocal(t *testing.T) {
	session := &fakeSession{snapshots: []*core.Snapshot{tabSnapshot("Clock", "Timer")}}

	src := `- tap: Clock
- wait: 5
- tap: Timer
`
	runner := New(factoryFor(session), testConfig(t))
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, src)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusPassed {
		t.Fatalf("expected passed, got %v (%q)", result.Status, result.Scenarios[0].Error)
	}
	for _, kind := range session.appliedKinds() {
		if kind == core.ActionWait {
			t.Error("wait action reached the backend")
		}
	}
	if result.Scenarios[0].Waits != 1 {
		t.Errorf("expected 1 local wait, got %d", result.Scenarios[0].Waits)
	}
}

func TestRunner_EnvExpansion(t *testing.T) {
	session := &fakeSession{snapshots: []*core.Snapshot{tabSnapshot("Clock")}}

	// The scenario header overrides the runner-level value.
	src := `name: env expansion
env:
  TAB: Clock
---
- tap: ${TAB}
`
	cfg := testConfig(t)
	cfg.Env = map[string]string{"TAB": "Nope"}

	runner := New(factoryFor(session), cfg)
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, src)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusPassed {
		t.Fatalf("expected passed, got %v (%q)", result.Status, result.Scenarios[0].Error)
	}
	if session.applied[0].Target == nil || session.applied[0].Target != session.snapshots[0].Elements[0] {
		t.Error("expanded tap should hit the Clock container")
	}
}

func TestRunner_ScriptPolicy(t *testing.T) {
	dir := t.TempDir()
	script := `function decide(snapshot, state) {
    if (state.step >= 1) {
        return {action: {kind: "terminate"}, state: {phase: "done"}};
    }
    return {
        action: {kind: "tap", element: 0},
        state: {phase: "step", step: 1, waits: 0}
    };
}
`
	if err := os.WriteFile(filepath.Join(dir, "walk.js"), []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	src := `name: scripted
policy:
  kind: script
  script: walk.js
---
[]
`
	sc, err := scenario.Parse([]byte(src), filepath.Join(dir, "scripted.yaml"))
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}

	session := &fakeSession{snapshots: []*core.Snapshot{tabSnapshot("Clock")}}
	runner := New(factoryFor(session), testConfig(t))
	result, err := runner.Run(context.Background(), []*scenario.Scenario{sc})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusPassed {
		t.Fatalf("expected passed, got %v (%q)", result.Status, result.Scenarios[0].Error)
	}
	kinds := session.appliedKinds()
	if len(kinds) != 2 || kinds[0] != core.ActionTap || kinds[1] != core.ActionTerminate {
		t.Errorf("expected tap then terminate, got %v", kinds)
	}
}

func TestRunner_QueryErrorCloses(t *testing.T) {
	session := &fakeSession{
		snapshots: []*core.Snapshot{tabSnapshot("Clock")},
		queryErr:  core.ErrNoSession,
	}

	runner := New(factoryFor(session), testConfig(t))
	result, err := runner.Run(context.Background(), []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != core.StatusErrored {
		t.Fatalf("expected errored, got %v", result.Status)
	}
	if session.closes != 1 {
		t.Errorf("expected exactly 1 close, got %d", session.closes)
	}
}

func TestRunner_CancelledRunSkipsScenarios(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	factory := func() (Session, error) {
		calls++
		return &fakeSession{}, nil
	}

	runner := New(factory, testConfig(t))
	result, err := runner.Run(ctx, []*scenario.Scenario{parseScenario(t, clockYAML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", result.Skipped)
	}
	if result.Scenarios[0].Error != "run cancelled" {
		t.Errorf("unexpected skip reason: %q", result.Scenarios[0].Error)
	}
	if calls != 0 {
		t.Errorf("no session should be opened, got %d", calls)
	}
}
