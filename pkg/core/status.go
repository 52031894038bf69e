package core

// RunStatus represents the execution status of a scenario or a single action.
type RunStatus int

const (
	StatusPending RunStatus = iota
	StatusRunning
	StatusPassed
	StatusFailed
	StatusErrored
	StatusSkipped
)

// String returns the string representation of the status.
func (s RunStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status represents a finished state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status counts as a successful outcome.
func (s RunStatus) IsSuccess() bool {
	return s == StatusPassed || s == StatusSkipped
}

// ErrorCategory classifies errors so callers can react without string matching.
type ErrorCategory int

const (
	CategoryNone ErrorCategory = iota
	// CategoryConfig covers invalid capability sets, scenario files, and settings.
	CategoryConfig
	// CategoryConnection covers unreachable or incompatible automation servers.
	CategoryConnection
	// CategorySession covers operations on a closed or expired session.
	CategorySession
	// CategoryAction covers backend rejections while executing an action.
	CategoryAction
	// CategoryPolicy covers decision policies that ran out of retries.
	CategoryPolicy
	// CategoryAssertion covers failed state assertions.
	CategoryAssertion
	// CategoryTimeout covers deadlines exceeded while waiting on the device.
	CategoryTimeout
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryConfig:
		return "config"
	case CategoryConnection:
		return "connection"
	case CategorySession:
		return "session"
	case CategoryAction:
		return "action"
	case CategoryPolicy:
		return "policy"
	case CategoryAssertion:
		return "assertion"
	case CategoryTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
