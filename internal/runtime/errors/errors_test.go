package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "protobroker: configuration is required"},
		{"ErrDependencyMissing", ErrDependencyMissing, "protobroker: required dependency is missing"},
		{"ErrRetryBudgetExhausted", ErrRetryBudgetExhausted, "protobroker: retry budget exhausted"},
		{"ErrSchedulerActive", ErrSchedulerActive, "protobroker: lifecycle scheduler is already running"},
		{"ErrNotStarted", ErrNotStarted, "protobroker: broker not started yet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "protobroker: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if err := NewConfigValidationError(nil); err != nil {
			t.Errorf("NewConfigValidationError(nil) = %v, want nil", err)
		}
	})

	t.Run("errors.Is works with wrapped error", func(t *testing.T) {
		inner := errors.New("specific error")
		err := NewConfigValidationError(inner)

		var cfgErr ConfigValidationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigValidationError, got %T", err)
		}
		if !errors.Is(err, inner) {
			t.Error("errors.Is should match wrapped error")
		}
	})
}

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"dependency", &DependencyMissingError{Name: "java"}, ErrDependencyMissing},
		{"crashed", &ProcessCrashedError{Command: "zk", ExitCode: 1}, ErrProcessCrashed},
		{"timeout", &ReadinessTimeoutError{Command: "zk", Timeout: time.Second}, ErrReadinessTimeout},
		{"launch", &LaunchError{Command: "zk", Err: errors.New("no such file")}, ErrLaunchFailed},
		{"topics", &TopicCreationError{Failed: []string{"a"}}, ErrTopicCreationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("start: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Fatalf("expected %v to match %v", wrapped, tt.sentinel)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable(&ProcessCrashedError{}) {
		t.Error("crashed process should be recoverable")
	}
	if !IsRecoverable(fmt.Errorf("attempt 1: %w", &ReadinessTimeoutError{})) {
		t.Error("wrapped readiness timeout should be recoverable")
	}
	if IsRecoverable(&LaunchError{Err: errors.New("boom")}) {
		t.Error("launch failure must not be recoverable")
	}
	if IsRecoverable(NewConfigValidationError(errors.New("bad"))) {
		t.Error("config errors must not be recoverable")
	}
	exhausted := exhaustedError{last: &ReadinessTimeoutError{}}
	if IsRecoverable(exhausted) {
		t.Error("exhausted retry budget must not be recoverable")
	}
}

// exhaustedError wraps a final attempt failure the way the broker does.
type exhaustedError struct{ last error }

func (e exhaustedError) Error() string   { return "exhausted" }
func (e exhaustedError) Unwrap() []error { return []error{ErrRetryBudgetExhausted, e.last} }

func TestTopicCreationErrorMessage(t *testing.T) {
	err := &TopicCreationError{Failed: []string{"orders", "payments"}, Err: errors.New("exit status 1")}
	want := "protobroker: could not create topics [orders, payments]: exit status 1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
