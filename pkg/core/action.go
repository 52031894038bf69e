package core

import (
	"fmt"
	"time"
)

// ActionKind discriminates the Action variant.
type ActionKind string

const (
	ActionTap       ActionKind = "tap"
	ActionSwipe     ActionKind = "swipe"
	ActionInput     ActionKind = "input"
	ActionWait      ActionKind = "wait"
	ActionAssert    ActionKind = "assert"
	ActionTerminate ActionKind = "terminate"
)

// Action is one instruction for the session. Only the fields belonging to
// the Kind are set; the rest stay zero.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Tap and input target. Point is the alternative for coordinate taps.
	Target *Element `json:"target,omitempty"`
	Point  *Point   `json:"point,omitempty"`

	// Swipe geometry. Direction ("up", "down", "left", "right") is resolved
	// against the screen size by the session; From/To override it.
	Direction  string `json:"direction,omitempty"`
	From       *Point `json:"from,omitempty"`
	To         *Point `json:"to,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`

	// Input text.
	Text string `json:"text,omitempty"`

	// Wait duration, honored by the orchestrator without backend traffic.
	Wait time.Duration `json:"wait,omitempty"`

	// State assertion evaluated against a fresh snapshot.
	Assert *Assertion `json:"assert,omitempty"`
}

// Tap returns a tap action on the given element.
func Tap(target *Element) Action {
	return Action{Kind: ActionTap, Target: target}
}

// TapAt returns a tap action at screen coordinates.
func TapAt(x, y int) Action {
	return Action{Kind: ActionTap, Point: &Point{X: x, Y: y}}
}

// SwipeDirection returns a directional swipe action.
func SwipeDirection(direction string, durationMs int) Action {
	return Action{Kind: ActionSwipe, Direction: direction, DurationMs: durationMs}
}

// Swipe returns a coordinate swipe action.
func Swipe(from, to Point, durationMs int) Action {
	return Action{Kind: ActionSwipe, From: &from, To: &to, DurationMs: durationMs}
}

// Input returns a text input action. A nil target sends to the focused element.
func Input(target *Element, text string) Action {
	return Action{Kind: ActionInput, Target: target, Text: text}
}

// WaitFor returns a wait action.
func WaitFor(d time.Duration) Action {
	return Action{Kind: ActionWait, Wait: d}
}

// AssertState returns a state assertion action.
func AssertState(a Assertion) Action {
	return Action{Kind: ActionAssert, Assert: &a}
}

// Terminate returns the action that stops the app under test.
func Terminate() Action {
	return Action{Kind: ActionTerminate}
}

// Describe returns a short description for logs and reports.
func (a Action) Describe() string {
	switch a.Kind {
	case ActionTap:
		if a.Target != nil {
			return fmt.Sprintf("tap %s", a.Target.Describe())
		}
		if a.Point != nil {
			return fmt.Sprintf("tap (%d, %d)", a.Point.X, a.Point.Y)
		}
		return "tap"
	case ActionSwipe:
		if a.From != nil && a.To != nil {
			return fmt.Sprintf("swipe (%d,%d) -> (%d,%d)", a.From.X, a.From.Y, a.To.X, a.To.Y)
		}
		return fmt.Sprintf("swipe %s", a.Direction)
	case ActionInput:
		if a.Target != nil {
			return fmt.Sprintf("input %q into %s", a.Text, a.Target.Describe())
		}
		return fmt.Sprintf("input %q", a.Text)
	case ActionWait:
		return fmt.Sprintf("wait %s", a.Wait)
	case ActionAssert:
		if a.Assert != nil {
			return a.Assert.Describe()
		}
		return "assert"
	case ActionTerminate:
		return "terminate"
	default:
		return string(a.Kind)
	}
}

// AssertCondition names the property an assertion checks.
type AssertCondition string

const (
	AssertVisible      AssertCondition = "visible"
	AssertNotVisible   AssertCondition = "notVisible"
	AssertEnabled      AssertCondition = "enabled"
	AssertSelected     AssertCondition = "selected"
	AssertContainsText AssertCondition = "containsText"
)

// Assertion is a predicate over a snapshot.
type Assertion struct {
	Target    Target          `yaml:"target" json:"target"`
	Condition AssertCondition `yaml:"condition" json:"condition"`
	Text      string          `yaml:"text,omitempty" json:"text,omitempty"`
}

// Describe returns a short description of the assertion.
func (a Assertion) Describe() string {
	if a.Condition == AssertContainsText {
		return fmt.Sprintf("assert %s contains %q", a.Target.Describe(), a.Text)
	}
	return fmt.Sprintf("assert %s %s", a.Target.Describe(), a.Condition)
}

// Check evaluates the assertion against a snapshot. It is pure: the
// snapshot is only read.
func (a Assertion) Check(snap *Snapshot) error {
	var el *Element
	if snap != nil {
		el = FirstMatch(snap.Elements, a.Target)
	}

	if a.Condition == AssertNotVisible {
		if el != nil && el.Displayed {
			return ErrAssertionFailed.WithMessage("element %s is visible", a.Target.Describe())
		}
		return nil
	}

	if el == nil {
		return ErrAssertionFailed.WithMessage("element %s not found", a.Target.Describe())
	}

	switch a.Condition {
	case AssertVisible:
		if !el.Displayed {
			return ErrAssertionFailed.WithMessage("element %s is not visible", a.Target.Describe())
		}
	case AssertEnabled:
		if !el.Enabled {
			return ErrAssertionFailed.WithMessage("element %s is not enabled", a.Target.Describe())
		}
	case AssertSelected:
		if !el.Selected {
			return ErrAssertionFailed.WithMessage("element %s is not selected", a.Target.Describe())
		}
	case AssertContainsText:
		if !containsFold(el.Label, a.Text) {
			return ErrAssertionFailed.WithMessage("element %s does not contain %q", a.Target.Describe(), a.Text)
		}
	default:
		return ErrAssertionFailed.WithMessage("unknown condition: %s", a.Condition)
	}
	return nil
}
