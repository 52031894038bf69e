package core

import (
	"errors"
	"fmt"
)

// ExecutionError is the error type used across the runner. It carries a
// category for programmatic handling, a stable code for reports, and an
// optional wrapped cause.
type ExecutionError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// This lets errors.Is match against the predefined sentinel errors
// even after WithCause/WithMessage produced a copy.
func (e *ExecutionError) Is(target error) bool {
	var t *ExecutionError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause attached.
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// WithMessage returns a copy of the error with a more specific message.
func (e *ExecutionError) WithMessage(format string, args ...interface{}) *ExecutionError {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

// WithDetails returns a copy of the error with detail values attached.
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	clone := *e
	clone.Details = details
	return &clone
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(category ErrorCategory, code, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Predefined errors. Use errors.Is to test for them; use the With* helpers
// to attach context before returning.
var (
	// ErrInvalidCapabilities indicates the capability set failed validation.
	ErrInvalidCapabilities = NewExecutionError(CategoryConfig, "INVALID_CAPABILITIES", "capability set is invalid")

	// ErrInvalidScenario indicates a scenario file failed validation.
	ErrInvalidScenario = NewExecutionError(CategoryConfig, "INVALID_SCENARIO", "scenario is invalid")

	// ErrServerUnreachable indicates the automation server did not respond.
	ErrServerUnreachable = NewExecutionError(CategoryConnection, "SERVER_UNREACHABLE", "automation server is unreachable")

	// ErrVersionUnsupported indicates the server version failed the minimum constraint.
	ErrVersionUnsupported = NewExecutionError(CategoryConnection, "VERSION_UNSUPPORTED", "automation server version is unsupported")

	// ErrSessionClosed indicates an operation was attempted on a closed session.
	ErrSessionClosed = NewExecutionError(CategorySession, "SESSION_CLOSED", "session is closed")

	// ErrNoSession indicates an operation was attempted before a session was opened.
	ErrNoSession = NewExecutionError(CategorySession, "NO_SESSION", "no active session")

	// ErrActionFailed indicates the backend rejected or failed an action.
	ErrActionFailed = NewExecutionError(CategoryAction, "ACTION_FAILED", "action failed")

	// ErrElementNotFound indicates no element matched the requested target.
	ErrElementNotFound = NewExecutionError(CategoryAction, "ELEMENT_NOT_FOUND", "element not found")

	// ErrPolicyExhausted indicates a policy gave up after its wait retries.
	ErrPolicyExhausted = NewExecutionError(CategoryPolicy, "POLICY_EXHAUSTED", "policy exhausted wait retries")

	// ErrPolicyScript indicates a script policy failed to load or threw.
	ErrPolicyScript = NewExecutionError(CategoryPolicy, "POLICY_SCRIPT_FAILED", "policy script failed")

	// ErrAssertionFailed indicates a state assertion did not hold.
	ErrAssertionFailed = NewExecutionError(CategoryAssertion, "ASSERTION_FAILED", "assertion failed")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = NewExecutionError(CategoryTimeout, "TIMEOUT", "operation timed out")
)

// CategoryOf returns the category of an error, or CategoryNone for plain errors.
func CategoryOf(err error) ErrorCategory {
	var e *ExecutionError
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryNone
}
