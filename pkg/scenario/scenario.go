// Package scenario handles parsing and representation of agent scenario files.
package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// Scenario is a parsed scenario file: a header plus the steps the
// decision policy works through.
type Scenario struct {
	SourcePath string
	Header     Header
	Steps      []Step
}

// Name returns the scenario name, falling back to the source path.
func (s *Scenario) Name() string {
	if s.Header.Name != "" {
		return s.Header.Name
	}
	return s.SourcePath
}

// Header is the scenario-level configuration from the first YAML document.
type Header struct {
	Name        string            `yaml:"name"`
	AppPackage  string            `yaml:"appPackage"`
	AppActivity string            `yaml:"appActivity"`
	Policy      PolicySpec        `yaml:"policy"`
	Env         map[string]string `yaml:"env"`
}

// PolicySpec selects and tunes the decision policy for a scenario.
type PolicySpec struct {
	// Kind is "sequence" (default) or "script".
	Kind string `yaml:"kind"`
	// Script is the path to the policy script, relative to the scenario
	// file. Only used when Kind is "script".
	Script string `yaml:"script"`
	// WaitLimit caps consecutive wait retries before the policy gives up.
	// Zero means the runner default.
	WaitLimit int `yaml:"waitLimit"`
	// RetryDelayMs is the pause between wait retries. Zero means the
	// runner default.
	RetryDelayMs int `yaml:"retryDelayMs"`
	// Matching is "exact" (default) or "fuzzy".
	Matching string `yaml:"matching"`
}

// StepKind names a step variant.
type StepKind string

// Step kind constants.
const (
	StepTap    StepKind = "tap"
	StepInput  StepKind = "input"
	StepSwipe  StepKind = "swipe"
	StepAssert StepKind = "assert"
	StepWait   StepKind = "wait"
)

// Matching mode names, usable per policy and per step.
const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
)

// Step is the interface for all scenario steps.
type Step interface {
	Kind() StepKind
	IsOptional() bool
	Label() string
	MatchMode() string
	Describe() string
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepKind StepKind `yaml:"-"`
	Optional bool     `yaml:"optional"`
	StepName string   `yaml:"name"`
	// Match overrides the policy matching mode for this step.
	Match string `yaml:"match"`
}

// Kind returns the step kind.
func (b *BaseStep) Kind() StepKind { return b.StepKind }

// IsOptional reports whether the step may be skipped when its target
// never appears.
func (b *BaseStep) IsOptional() bool { return b.Optional }

// Label returns the display name of the step.
func (b *BaseStep) Label() string { return b.StepName }

// MatchMode returns the step's matching override, empty for the
// policy default.
func (b *BaseStep) MatchMode() string { return b.Match }

// Describe returns a human-readable description.
func (b *BaseStep) Describe() string { return string(b.StepKind) }

// TapStep taps a matched element, or a coordinate point.
type TapStep struct {
	BaseStep `yaml:",inline"`
	Target   core.Target `yaml:",inline"`
	Point    string      `yaml:"point"` // "x,y" screen coordinates
}

// Describe returns a human-readable description.
func (s *TapStep) Describe() string {
	if s.Point != "" {
		return fmt.Sprintf("tap point %s", s.Point)
	}
	return fmt.Sprintf("tap %s", s.Target.Describe())
}

// Coordinates parses the Point field. ok is false when no point is set
// or it does not parse.
func (s *TapStep) Coordinates() (x, y int, ok bool) {
	return parsePoint(s.Point)
}

// InputStep types text into a matched element, or into the focused
// element when no target is given.
type InputStep struct {
	BaseStep `yaml:",inline"`
	Target   core.Target `yaml:",inline"`
	Text     string      `yaml:"text"`
}

// Describe returns a human-readable description.
func (s *InputStep) Describe() string {
	if s.Target.IsEmpty() {
		return fmt.Sprintf("input %q", s.Text)
	}
	return fmt.Sprintf("input %q into %s", s.Text, s.Target.Describe())
}

// SwipeStep performs a swipe gesture, either directional or between
// two coordinate points.
type SwipeStep struct {
	BaseStep   `yaml:",inline"`
	Direction  string `yaml:"direction"` // up, down, left, right
	Start      string `yaml:"start"`     // "x,y"
	End        string `yaml:"end"`       // "x,y"
	DurationMs int    `yaml:"duration"`
}

// Describe returns a human-readable description.
func (s *SwipeStep) Describe() string {
	if s.Start != "" && s.End != "" {
		return fmt.Sprintf("swipe %s -> %s", s.Start, s.End)
	}
	return fmt.Sprintf("swipe %s", s.Direction)
}

// Points parses the Start and End fields. ok is false unless both parse.
func (s *SwipeStep) Points() (from, to core.Point, ok bool) {
	fx, fy, fok := parsePoint(s.Start)
	tx, ty, tok := parsePoint(s.End)
	if !fok || !tok {
		return core.Point{}, core.Point{}, false
	}
	return core.Point{X: fx, Y: fy}, core.Point{X: tx, Y: ty}, true
}

// AssertStep checks a property of a matched element.
type AssertStep struct {
	BaseStep  `yaml:",inline"`
	Target    core.Target          `yaml:",inline"`
	Condition core.AssertCondition `yaml:"condition"`
	Text      string               `yaml:"text"`
}

// Assertion converts the step into its snapshot predicate. An unset
// condition means visible.
func (s *AssertStep) Assertion() core.Assertion {
	cond := s.Condition
	if cond == "" {
		cond = core.AssertVisible
	}
	return core.Assertion{Target: s.Target, Condition: cond, Text: s.Text}
}

// Describe returns a human-readable description.
func (s *AssertStep) Describe() string {
	return s.Assertion().Describe()
}

// WaitStep pauses for a fixed duration.
type WaitStep struct {
	BaseStep   `yaml:",inline"`
	DurationMs int `yaml:"duration"`
}

// Describe returns a human-readable description.
func (s *WaitStep) Describe() string {
	return fmt.Sprintf("wait %dms", s.DurationMs)
}

// parsePoint parses an "x,y" coordinate string.
func parsePoint(s string) (x, y int, ok bool) {
	if s == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return x, y, true
}
