package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConfigRequired       = sterrors.New("protobroker: configuration is required")
	ErrDependencyMissing    = sterrors.New("protobroker: required dependency is missing")
	ErrProcessCrashed       = sterrors.New("protobroker: process exited before becoming ready")
	ErrReadinessTimeout     = sterrors.New("protobroker: process did not become ready in time")
	ErrRetryBudgetExhausted = sterrors.New("protobroker: retry budget exhausted")
	ErrTopicCreationFailed  = sterrors.New("protobroker: topic creation failed")
	ErrSchedulerActive      = sterrors.New("protobroker: lifecycle scheduler is already running")
	ErrNotStarted           = sterrors.New("protobroker: broker not started yet")
	ErrSessionActive        = sterrors.New("protobroker: a broker session is already active")
	ErrLaunchFailed         = sterrors.New("protobroker: process could not be launched")
)

// ConfigValidationError reports an invalid or incomplete configuration. It is
// never retried.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("protobroker: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil for a nil err.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// DependencyMissingError names an external binary that could not be found.
type DependencyMissingError struct {
	Name string
	Hint string
}

func (e *DependencyMissingError) Error() string {
	msg := fmt.Sprintf("protobroker: %s installation not found", e.Name)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

func (e *DependencyMissingError) Unwrap() error { return ErrDependencyMissing }

// ProcessCrashedError is returned when a supervised process exits before its
// readiness pattern was seen.
type ProcessCrashedError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ProcessCrashedError) Error() string {
	return fmt.Sprintf("protobroker: %s exited with code %d before becoming ready: stdout=%q, stderr=%q",
		e.Command, e.ExitCode, e.Stdout, e.Stderr)
}

func (e *ProcessCrashedError) Unwrap() error { return ErrProcessCrashed }

// ReadinessTimeoutError is returned when the readiness pattern did not appear
// before the deadline. The process has already been terminated.
type ReadinessTimeoutError struct {
	Command string
	Timeout time.Duration
	Stdout  string
	Stderr  string
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("protobroker: %s not ready after %s", e.Command, e.Timeout)
}

func (e *ReadinessTimeoutError) Unwrap() error { return ErrReadinessTimeout }

// LaunchError wraps a failure to spawn a process at all.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("protobroker: launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() []error { return []error{ErrLaunchFailed, e.Err} }

// TopicCreationError aggregates every failed topic-creation child into a single
// error.
type TopicCreationError struct {
	Failed []string
	Err    error
}

func (e *TopicCreationError) Error() string {
	msg := "protobroker: could not create topics [" + strings.Join(e.Failed, ", ") + "]"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TopicCreationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTopicCreationFailed}
	}
	return []error{ErrTopicCreationFailed, e.Err}
}

// IsRecoverable reports whether err may be cured by retrying with a fresh port.
// An exhausted retry budget is final even though it wraps the last failure.
func IsRecoverable(err error) bool {
	if sterrors.Is(err, ErrRetryBudgetExhausted) {
		return false
	}
	return sterrors.Is(err, ErrProcessCrashed) || sterrors.Is(err, ErrReadinessTimeout)
}
