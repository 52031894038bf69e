package core

import (
	"fmt"
	"time"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Bounds represents an element's position and size on screen.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds.
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds.
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Element is one node of a UI snapshot.
//
// Role is the widget class ("android.widget.Button"), Label the visible
// text, Identifier the resource id, and Desc the accessibility description.
// Depth and Parent preserve the hierarchy so a non-clickable match can be
// resolved to its nearest clickable ancestor.
type Element struct {
	Role       string `json:"role,omitempty"`
	Label      string `json:"label,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Desc       string `json:"desc,omitempty"`
	Bounds     Bounds `json:"bounds"`
	Clickable  bool   `json:"clickable,omitempty"`
	Enabled    bool   `json:"enabled,omitempty"`
	Displayed  bool   `json:"displayed,omitempty"`
	Selected   bool   `json:"selected,omitempty"`
	Focused    bool   `json:"focused,omitempty"`
	Depth      int    `json:"depth"`

	Parent   *Element   `json:"-"`
	Children []*Element `json:"-"`
}

// Describe returns a short human-readable description of the element.
func (e *Element) Describe() string {
	switch {
	case e.Identifier != "":
		return fmt.Sprintf("%q (id=%s)", e.Label, e.Identifier)
	case e.Label != "":
		return fmt.Sprintf("%q", e.Label)
	case e.Desc != "":
		return fmt.Sprintf("desc=%q", e.Desc)
	default:
		return e.Role
	}
}

// ClickableAncestor returns the element itself if clickable, otherwise the
// nearest clickable ancestor. Returns the element unchanged when no
// clickable ancestor exists, so taps land on the matched bounds.
func (e *Element) ClickableAncestor() *Element {
	if e.Clickable {
		return e
	}
	for p := e.Parent; p != nil; p = p.Parent {
		if p.Clickable {
			return p
		}
	}
	return e
}

// Snapshot is an immutable capture of the foreground UI at one instant.
// Elements are in document order of the backend hierarchy. Callers must
// not mutate a snapshot after capture.
type Snapshot struct {
	Elements   []*Element `json:"elements"`
	Activity   string     `json:"activity,omitempty"`
	Source     string     `json:"-"`
	CapturedAt time.Time  `json:"capturedAt"`
}

// Len returns the number of elements in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Elements)
}
