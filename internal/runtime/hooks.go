package runtime

import (
	"context"
	"time"

	"github.com/drblury/protobroker/internal/runtime/logging"
	"github.com/drblury/protobroker/internal/runtime/serviceconf"
)

// AttemptContext provides information about one launch attempt to hooks.
type AttemptContext struct {
	// SessionID identifies the broker session the attempt belongs to.
	SessionID string
	// Service is the kind of service being launched.
	Service serviceconf.Kind
	// Attempt is 1-based.
	Attempt int
	// MaxAttempts is retries+1.
	MaxAttempts int
	// Port is the port this attempt was configured with.
	Port int
	// ConfigPath is the properties file written for this attempt.
	ConfigPath string
	// Context is the context of the surrounding Start call.
	Context context.Context
	// StartedAt is when the process was launched.
	StartedAt time.Time
	// Duration is how long the attempt took (only set in OnAttemptReady and
	// OnAttemptError).
	Duration time.Duration
}

// LifecycleHooks defines callbacks for launch attempts.
// All hooks are optional - nil hooks are simply not called.
//
// Hooks run on the lifecycle scheduler. Calling SyncBroker from inside a hook
// fails with ErrSchedulerActive unless AllowReentrant is set.
type LifecycleHooks struct {
	// OnAttemptStart is called right before the service process is spawned.
	OnAttemptStart func(ctx AttemptContext)

	// OnAttemptReady is called once the readiness pattern was seen.
	OnAttemptReady func(ctx AttemptContext)

	// OnAttemptError is called for every failed attempt, including the ones
	// that are retried.
	OnAttemptError func(ctx AttemptContext, err error)
}

// Merge combines two LifecycleHooks, creating a new LifecycleHooks that calls
// both. The hooks from 'other' are called after the hooks from 'h'.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnAttemptStart: chainAttemptHooks(h.OnAttemptStart, other.OnAttemptStart),
		OnAttemptReady: chainAttemptHooks(h.OnAttemptReady, other.OnAttemptReady),
		OnAttemptError: chainErrorHooks(h.OnAttemptError, other.OnAttemptError),
	}
}

func chainAttemptHooks(a, b func(AttemptContext)) func(AttemptContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx AttemptContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(AttemptContext, error)) func(AttemptContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx AttemptContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h LifecycleHooks) attemptStart(ctx AttemptContext) {
	if h.OnAttemptStart != nil {
		h.OnAttemptStart(ctx)
	}
}

func (h LifecycleHooks) attemptReady(ctx AttemptContext) {
	if h.OnAttemptReady != nil {
		h.OnAttemptReady(ctx)
	}
}

func (h LifecycleHooks) attemptError(ctx AttemptContext, err error) {
	if h.OnAttemptError != nil {
		h.OnAttemptError(ctx, err)
	}
}

// LoggingHooks returns pre-built hooks that log attempt lifecycle events.
func LoggingHooks(logger logging.ServiceLogger) LifecycleHooks {
	return LifecycleHooks{
		OnAttemptStart: func(ctx AttemptContext) {
			logger.Info("Launching service", logging.LogFields{
				"service":  ctx.Service,
				"attempt":  ctx.Attempt,
				"attempts": ctx.MaxAttempts,
				"port":     ctx.Port,
				"config":   ctx.ConfigPath,
			})
		},
		OnAttemptReady: func(ctx AttemptContext) {
			logger.Info("Service ready", logging.LogFields{
				"service":     ctx.Service,
				"attempt":     ctx.Attempt,
				"port":        ctx.Port,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnAttemptError: func(ctx AttemptContext, err error) {
			logger.Warn("Service attempt failed", logging.LogFields{
				"service":     ctx.Service,
				"attempt":     ctx.Attempt,
				"attempts":    ctx.MaxAttempts,
				"port":        ctx.Port,
				"duration_ms": ctx.Duration.Milliseconds(),
				"error":       err.Error(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that record attempt metrics.
func MetricsHooks(metrics *Metrics) LifecycleHooks {
	return LifecycleHooks{
		OnAttemptReady: func(ctx AttemptContext) {
			metrics.RecordAttempt(ctx.Service, OutcomeReady, ctx.Duration)
		},
		OnAttemptError: func(ctx AttemptContext, err error) {
			metrics.RecordAttempt(ctx.Service, classifyOutcome(err), ctx.Duration)
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on failed attempts.
func AlertingHooks(alertFunc func(ctx AttemptContext, err error)) LifecycleHooks {
	return LifecycleHooks{
		OnAttemptError: alertFunc,
	}
}
