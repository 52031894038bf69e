package scenario

import (
	"strings"
	"testing"
)

func TestParse_SimpleScenario(t *testing.T) {
	src := `
- tap: "Clock"
- input: "0930"
- tap:
    id: com.example:id/start
- wait: 500
`
	sc, err := Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sc.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(sc.Steps))
	}

	tap, ok := sc.Steps[0].(*TapStep)
	if !ok {
		t.Fatalf("expected TapStep, got %T", sc.Steps[0])
	}
	if tap.Target.Label != "Clock" {
		t.Errorf("expected label=Clock, got %q", tap.Target.Label)
	}

	input, ok := sc.Steps[1].(*InputStep)
	if !ok {
		t.Fatalf("expected InputStep, got %T", sc.Steps[1])
	}
	if input.Text != "0930" {
		t.Errorf("expected text=0930, got %q", input.Text)
	}

	tap2, ok := sc.Steps[2].(*TapStep)
	if !ok {
		t.Fatalf("expected TapStep, got %T", sc.Steps[2])
	}
	if tap2.Target.Identifier != "com.example:id/start" {
		t.Errorf("expected id=com.example:id/start, got %q", tap2.Target.Identifier)
	}

	wait, ok := sc.Steps[3].(*WaitStep)
	if !ok {
		t.Fatalf("expected WaitStep, got %T", sc.Steps[3])
	}
	if wait.DurationMs != 500 {
		t.Errorf("expected duration=500, got %d", wait.DurationMs)
	}
}

func TestParse_WithHeader(t *testing.T) {
	src := `
name: clock-tabs
appPackage: com.android.deskclock
appActivity: .DeskClock
policy:
  waitLimit: 3
  retryDelayMs: 1000
  matching: fuzzy
env:
  ALARM_TIME: "0930"
---
- tap: Clock
- tap: Timer
- tap: Alarm
`
	sc, err := Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sc.Header.Name != "clock-tabs" {
		t.Errorf("expected name=clock-tabs, got %q", sc.Header.Name)
	}
	if sc.Header.AppPackage != "com.android.deskclock" {
		t.Errorf("expected appPackage=com.android.deskclock, got %q", sc.Header.AppPackage)
	}
	if sc.Header.Policy.WaitLimit != 3 {
		t.Errorf("expected waitLimit=3, got %d", sc.Header.Policy.WaitLimit)
	}
	if sc.Header.Policy.RetryDelayMs != 1000 {
		t.Errorf("expected retryDelayMs=1000, got %d", sc.Header.Policy.RetryDelayMs)
	}
	if sc.Header.Policy.Matching != "fuzzy" {
		t.Errorf("expected matching=fuzzy, got %q", sc.Header.Policy.Matching)
	}
	if sc.Header.Env["ALARM_TIME"] != "0930" {
		t.Errorf("expected env.ALARM_TIME=0930, got %q", sc.Header.Env["ALARM_TIME"])
	}
	if len(sc.Steps) != 3 {
		t.Errorf("expected 3 steps, got %d", len(sc.Steps))
	}
	if sc.Name() != "clock-tabs" {
		t.Errorf("expected Name()=clock-tabs, got %q", sc.Name())
	}
}

func TestParse_AllStepKinds(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		kind StepKind
	}{
		{"tap scalar", `- tap: "Clock"`, StepTap},
		{"tap mapping", `- tap: {id: btn}`, StepTap},
		{"tap point", `- tap: {point: "100,200"}`, StepTap},
		{"input scalar", `- input: "hello"`, StepInput},
		{"input mapping", `- input: {id: field, text: hello}`, StepInput},
		{"swipe scalar", `- swipe: up`, StepSwipe},
		{"swipe mapping", `- swipe: {direction: down, duration: 400}`, StepSwipe},
		{"swipe points", `- swipe: {start: "540,1500", end: "540,300"}`, StepSwipe},
		{"assert scalar", `- assert: "Timer"`, StepAssert},
		{"assert mapping", `- assert: {label: Timer, condition: selected}`, StepAssert},
		{"wait scalar", `- wait: 1000`, StepWait},
		{"wait mapping", `- wait: {duration: 1000}`, StepWait},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := Parse([]byte(tc.src), "test.yaml")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(sc.Steps) != 1 {
				t.Fatalf("expected 1 step, got %d", len(sc.Steps))
			}
			if sc.Steps[0].Kind() != tc.kind {
				t.Errorf("expected kind=%s, got %s", tc.kind, sc.Steps[0].Kind())
			}
		})
	}
}

func TestParse_StepModifiers(t *testing.T) {
	src := `
- tap:
    label: Promo banner
    optional: true
    name: dismiss promo
    match: fuzzy
`
	sc, err := Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := sc.Steps[0]
	if !step.IsOptional() {
		t.Error("expected optional step")
	}
	if step.Label() != "dismiss promo" {
		t.Errorf("expected name=dismiss promo, got %q", step.Label())
	}
	if step.MatchMode() != MatchFuzzy {
		t.Errorf("expected match=fuzzy, got %q", step.MatchMode())
	}

	tap := step.(*TapStep)
	if tap.Target.Label != "Promo banner" {
		t.Errorf("expected target label=Promo banner, got %q", tap.Target.Label)
	}
}

func TestParse_EmptyFile(t *testing.T) {
	_, err := Parse([]byte(""), "empty.yaml")
	if err == nil {
		t.Fatal("expected error for empty file")
	}
	if !strings.Contains(err.Error(), "empty scenario file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_UnknownStepKind(t *testing.T) {
	_, err := Parse([]byte(`- teleport: "Home"`), "test.yaml")
	if err == nil {
		t.Fatal("expected error for unknown step kind")
	}

	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if perr.Path != "test.yaml" {
		t.Errorf("expected path in error, got %q", perr.Path)
	}
}

func TestParse_StepNotAMapping(t *testing.T) {
	_, err := Parse([]byte("- [tap, Clock]"), "test.yaml")
	if err == nil {
		t.Fatal("expected error for sequence step node")
	}
}

func TestSplitYAMLDocuments_MultilineBlock(t *testing.T) {
	src := `name: with-script
notes: |
  first line
  ---
  not a separator
---
- tap: Clock
`
	sc, err := Parse([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Header.Name != "with-script" {
		t.Errorf("expected header to survive multiline block, got %q", sc.Header.Name)
	}
	if len(sc.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(sc.Steps))
	}
}

func TestTapStep_Coordinates(t *testing.T) {
	tests := []struct {
		point string
		x, y  int
		ok    bool
	}{
		{"100,200", 100, 200, true},
		{"540, 960", 540, 960, true},
		{"", 0, 0, false},
		{"abc,def", 0, 0, false},
		{"100", 0, 0, false},
	}

	for _, tt := range tests {
		step := &TapStep{Point: tt.point}
		x, y, ok := step.Coordinates()
		if ok != tt.ok || x != tt.x || y != tt.y {
			t.Errorf("Coordinates(%q) = (%d,%d,%v), want (%d,%d,%v)", tt.point, x, y, ok, tt.x, tt.y, tt.ok)
		}
	}
}

func TestSwipeStep_Points(t *testing.T) {
	step := &SwipeStep{Start: "540,1500", End: "540,300"}
	from, to, ok := step.Points()
	if !ok {
		t.Fatal("expected points to parse")
	}
	if from.X != 540 || from.Y != 1500 || to.X != 540 || to.Y != 300 {
		t.Errorf("unexpected points: %+v -> %+v", from, to)
	}

	step = &SwipeStep{Start: "540,1500"}
	if _, _, ok := step.Points(); ok {
		t.Error("expected missing end to fail")
	}
}
