package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result for a path.
type Result struct {
	// Scenarios holds the parsed scenarios in execution order.
	Scenarios []*Scenario
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator parses and validates scenario files before execution. All
// problems are collected; nothing runs until every file is clean.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a scenario file or a directory of scenario files.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = collectScenarioFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
		if len(files) == 0 {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: "no scenario files found",
			})
			return result
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		v.validateFile(file, result)
	}

	return result
}

// collectScenarioFiles finds all .yaml/.yml files in a directory.
func collectScenarioFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// validateFile parses one file and collects its semantic problems.
func (v *Validator) validateFile(path string, result *Result) {
	sc, err := ParseFile(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	for _, msg := range Check(sc) {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: msg,
		})
	}

	if spec := sc.Header.Policy; spec.Kind == "script" && spec.Script != "" {
		scriptPath := ResolveScript(sc)
		if _, err := os.Stat(scriptPath); err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("policy script not found: %s", scriptPath),
			})
		}
	}

	result.Scenarios = append(result.Scenarios, sc)
}

// ResolveScript returns the policy script path resolved against the
// scenario file location.
func ResolveScript(sc *Scenario) string {
	script := sc.Header.Policy.Script
	if script == "" || filepath.IsAbs(script) {
		return script
	}
	return filepath.Join(filepath.Dir(sc.SourcePath), script)
}

// Check runs the semantic checks on a parsed scenario and returns every
// problem found, not just the first.
func Check(sc *Scenario) []string {
	var problems []string

	spec := sc.Header.Policy
	switch spec.Kind {
	case "", "sequence":
		if len(sc.Steps) == 0 {
			problems = append(problems, "scenario has no steps")
		}
	case "script":
		if spec.Script == "" {
			problems = append(problems, "script policy needs a script path")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown policy kind: %s", spec.Kind))
	}

	switch spec.Matching {
	case "", MatchExact, MatchFuzzy:
	default:
		problems = append(problems, fmt.Sprintf("unknown matching mode: %s", spec.Matching))
	}
	if spec.WaitLimit < 0 {
		problems = append(problems, "waitLimit cannot be negative")
	}
	if spec.RetryDelayMs < 0 {
		problems = append(problems, "retryDelayMs cannot be negative")
	}

	for i, step := range sc.Steps {
		for _, msg := range checkStep(step) {
			problems = append(problems, fmt.Sprintf("step %d: %s", i+1, msg))
		}
	}

	return problems
}

func checkStep(step Step) []string {
	var problems []string

	switch step.MatchMode() {
	case "", MatchExact, MatchFuzzy:
	default:
		problems = append(problems, fmt.Sprintf("unknown match mode: %s", step.MatchMode()))
	}

	switch s := step.(type) {
	case *TapStep:
		if s.Point != "" {
			if _, _, ok := s.Coordinates(); !ok {
				problems = append(problems, fmt.Sprintf("tap point %q is not \"x,y\"", s.Point))
			}
		} else if s.Target.IsEmpty() {
			problems = append(problems, "tap needs a target or a point")
		}

	case *InputStep:
		if s.Text == "" {
			problems = append(problems, "input needs text")
		}

	case *SwipeStep:
		if s.Start != "" || s.End != "" {
			if _, _, ok := s.Points(); !ok {
				problems = append(problems, "swipe start and end must both be \"x,y\"")
			}
		} else {
			switch strings.ToLower(s.Direction) {
			case "up", "down", "left", "right":
			case "":
				problems = append(problems, "swipe needs a direction or start/end points")
			default:
				problems = append(problems, fmt.Sprintf("unknown swipe direction: %s", s.Direction))
			}
		}

	case *AssertStep:
		if s.Target.IsEmpty() {
			problems = append(problems, "assert needs a target")
		}
		switch s.Condition {
		case "", core.AssertVisible, core.AssertNotVisible, core.AssertEnabled, core.AssertSelected:
		case core.AssertContainsText:
			if s.Text == "" {
				problems = append(problems, "assert containsText needs text")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown assert condition: %s", s.Condition))
		}

	case *WaitStep:
		if s.DurationMs <= 0 {
			problems = append(problems, "wait needs a positive duration")
		}
	}

	return problems
}
