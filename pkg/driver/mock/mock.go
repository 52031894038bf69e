// Package mock provides an in-memory session for exercising the runner
// without a device or automation server.
package mock

import (
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// Session serves scripted screens. Taps advance to the next screen
// when there is one, so multi-screen scenarios can be played through.
type Session struct {
	screens []*core.Snapshot
	current int
	applied []core.Action
	closed  bool
}

// NewSession creates a session over the given screens. With no screens
// it serves the built-in clock demo screen.
func NewSession(screens ...*core.Snapshot) *Session {
	if len(screens) == 0 {
		screens = []*core.Snapshot{ClockScreen()}
	}
	return &Session{screens: screens}
}

// ClockScreen returns a snapshot resembling the deskclock tab bar,
// enough for the bundled example scenarios to run against.
func ClockScreen() *core.Snapshot {
	var elements []*core.Element
	tabs := []struct {
		label string
		id    string
	}{
		{"Alarm", "com.android.deskclock:id/tab_menu_alarm"},
		{"Clock", "com.android.deskclock:id/tab_menu_clock"},
		{"Timer", "com.android.deskclock:id/tab_menu_timer"},
		{"Stopwatch", "com.android.deskclock:id/tab_menu_stopwatch"},
	}
	for i, tab := range tabs {
		container := &core.Element{
			Role:       "android.widget.FrameLayout",
			Identifier: tab.id,
			Desc:       tab.label,
			Clickable:  true,
			Enabled:    true,
			Displayed:  true,
			Bounds:     core.Bounds{X: i * 270, Y: 1944, Width: 270, Height: 126},
		}
		label := &core.Element{
			Role:      "android.widget.TextView",
			Label:     tab.label,
			Enabled:   true,
			Displayed: true,
			Parent:    container,
			Depth:     1,
			Bounds:    core.Bounds{X: i*270 + 60, Y: 1964, Width: 150, Height: 40},
		}
		elements = append(elements, container, label)
	}
	return &core.Snapshot{
		Elements:   elements,
		Activity:   ".DeskClock",
		Source:     "<hierarchy rotation=\"0\"/>",
		CapturedAt: time.Now(),
	}
}

// Platform reports android, matching the demo screens.
func (s *Session) Platform() string { return "android" }

// Query returns the current screen.
func (s *Session) Query() (*core.Snapshot, error) {
	if s.closed {
		return nil, core.ErrSessionClosed
	}
	return s.screens[s.current], nil
}

// Apply records the action. Taps move to the next screen when one is
// available.
func (s *Session) Apply(action core.Action) error {
	if s.closed {
		return core.ErrSessionClosed
	}
	s.applied = append(s.applied, action)
	if action.Kind == core.ActionTap && s.current+1 < len(s.screens) {
		s.current++
	}
	return nil
}

// Screenshot returns a 1x1 transparent PNG.
func (s *Session) Screenshot() ([]byte, error) {
	if s.closed {
		return nil, core.ErrSessionClosed
	}
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Close is idempotent.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// Applied returns every action the session received, in order.
func (s *Session) Applied() []core.Action {
	return s.applied
}
