package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheck_Valid(t *testing.T) {
	sc, err := Parse([]byte(`
- tap: Clock
- assert: {label: Clock, condition: selected}
- wait: 500
`), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if problems := Check(sc); len(problems) != 0 {
		t.Errorf("expected no problems, got %v", problems)
	}
}

func TestCheck_CollectsAllProblems(t *testing.T) {
	sc, err := Parse([]byte(`
policy:
  matching: psychic
---
- tap: {}
- wait: 0
- assert: {label: Price, condition: containsText}
- swipe: diagonally
- tap:
    label: Timer
    match: telepathic
`), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	problems := Check(sc)
	if len(problems) != 6 {
		t.Fatalf("expected 6 problems, got %d: %v", len(problems), problems)
	}

	joined := strings.Join(problems, "\n")
	for _, want := range []string{
		"unknown matching mode: psychic",
		"tap needs a target",
		"wait needs a positive duration",
		"containsText needs text",
		"unknown swipe direction: diagonally",
		"unknown match mode: telepathic",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing problem %q in:\n%s", want, joined)
		}
	}
}

func TestCheck_ScriptPolicyNeedsPath(t *testing.T) {
	sc, err := Parse([]byte(`
policy:
  kind: script
---
- tap: Clock
`), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	problems := Check(sc)
	if len(problems) != 1 || !strings.Contains(problems[0], "script path") {
		t.Errorf("expected script path problem, got %v", problems)
	}
}

func TestCheck_SequenceNeedsSteps(t *testing.T) {
	sc := &Scenario{SourcePath: "test.yaml"}
	problems := Check(sc)
	if len(problems) != 1 || !strings.Contains(problems[0], "no steps") {
		t.Errorf("expected no-steps problem, got %v", problems)
	}
}

func TestValidator_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clock.yaml")
	content := `name: clock-tabs
---
- tap: Clock
- tap: Timer
- tap: Alarm
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	result := NewValidator().Validate(path)
	if !result.IsValid() {
		t.Fatalf("expected valid result, got errors: %v", result.Errors)
	}
	if len(result.Scenarios) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(result.Scenarios))
	}
	if result.Scenarios[0].Name() != "clock-tabs" {
		t.Errorf("unexpected scenario name: %q", result.Scenarios[0].Name())
	}
}

func TestValidator_Directory(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a_good.yaml")
	bad := filepath.Join(dir, "b_bad.yaml")

	if err := os.WriteFile(good, []byte("- tap: Clock\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("- wait: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result := NewValidator().Validate(dir)
	if result.IsValid() {
		t.Fatal("expected validation errors")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(result.Errors), result.Errors)
	}
	if !strings.Contains(result.Errors[0].Error(), "b_bad.yaml") {
		t.Errorf("error should name the file: %v", result.Errors[0])
	}
	// Both scenarios still parse so the summary can list them.
	if len(result.Scenarios) != 2 {
		t.Errorf("expected 2 scenarios, got %d", len(result.Scenarios))
	}
}

func TestValidator_MissingPath(t *testing.T) {
	result := NewValidator().Validate("/does/not/exist.yaml")
	if result.IsValid() {
		t.Fatal("expected error for missing path")
	}
}

func TestValidator_EmptyDirectory(t *testing.T) {
	result := NewValidator().Validate(t.TempDir())
	if result.IsValid() {
		t.Fatal("expected error for directory without scenarios")
	}
	if !strings.Contains(result.Errors[0].Error(), "no scenario files") {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}

func TestValidator_MissingScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scripted.yaml")
	content := `policy:
  kind: script
  script: policy.js
---
- tap: Clock
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	result := NewValidator().Validate(path)
	if result.IsValid() {
		t.Fatal("expected error for missing script")
	}
	if !strings.Contains(result.Errors[0].Error(), "policy script not found") {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}

func TestResolveScript(t *testing.T) {
	sc := &Scenario{SourcePath: "/flows/clock.yaml"}
	sc.Header.Policy.Script = "policy.js"
	if got := ResolveScript(sc); got != filepath.Join("/flows", "policy.js") {
		t.Errorf("unexpected resolved path: %q", got)
	}

	sc.Header.Policy.Script = "/abs/policy.js"
	if got := ResolveScript(sc); got != "/abs/policy.js" {
		t.Errorf("absolute path should pass through, got %q", got)
	}
}
