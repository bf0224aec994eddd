package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
	"github.com/drblury/protobroker/internal/runtime/jsoncodec"
	"github.com/drblury/protobroker/internal/runtime/logging"
	"github.com/drblury/protobroker/internal/runtime/process"
	"github.com/drblury/protobroker/internal/runtime/serviceconf"
)

// ServiceState is the lifecycle state of one service kind.
type ServiceState int

const (
	StateNotStarted ServiceState = iota
	StateStarting
	StateReady
	StateFailed
)

func (s ServiceState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "not_started"
	}
}

// Readiness patterns matched against a single output line.
var (
	CoordinationReadyPattern = regexp.MustCompile(`INFO Snapshot taken`)
	BrokerReadyPattern       = regexp.MustCompile(`INFO \[KafkaServer id=0\] started`)
)

// maxAllocTries bounds how often a port already used in this startService
// call is thrown away before giving up.
const maxAllocTries = 16

// RetryBudgetExhaustedError is returned when every attempt of a service
// failed. Configs holds every attempted configuration in order.
type RetryBudgetExhaustedError struct {
	Service serviceconf.Kind
	Configs []serviceconf.ServiceConfig
	// Last is the failure of the final attempt.
	Last error
}

func (e *RetryBudgetExhaustedError) Error() string {
	msg := fmt.Sprintf("protobroker: could not start %s after %d attempts with params: %s",
		e.Service, len(e.Configs), jsoncodec.String(e.Configs))
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

// Unwrap exposes the sentinel and the final attempt's failure, so errors.Is
// matches ErrReadinessTimeout or ErrProcessCrashed as well.
func (e *RetryBudgetExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{errspkg.ErrRetryBudgetExhausted}
	}
	return []error{errspkg.ErrRetryBudgetExhausted, e.Last}
}

// Ports returns the port varied by each attempt, in order.
func (e *RetryBudgetExhaustedError) Ports() []int {
	ports := make([]int, len(e.Configs))
	for i, cfg := range e.Configs {
		ports[i] = cfg.Port()
	}
	return ports
}

// serviceEntry is owned by one Broker and only touched under Broker.mu.
type serviceEntry struct {
	kind     serviceconf.Kind
	state    ServiceState
	config   serviceconf.ServiceConfig
	handle   *process.Handle
	attempts []serviceconf.ServiceConfig
}

func (b *Broker) launchSpec(kind serviceconf.Kind, configPath string) process.Spec {
	executable := BrokerExecutable
	pattern := BrokerReadyPattern
	if kind == serviceconf.KindCoordination {
		executable = CoordinationExecutable
		pattern = CoordinationReadyPattern
	}
	log := b.log.With(logging.LogFields{"service": kind})
	return process.Spec{
		Command:   ResolveExecutable(b.conf.BinDir, executable),
		Args:      []string{configPath},
		Dir:       b.dir,
		Pattern:   pattern,
		Capture:   process.Stdout,
		Timeout:   b.conf.StartupTimeout,
		StopGrace: b.conf.StopTimeout / 2,
		OnLine: func(stream process.Stream, line string) {
			log.Debug(line, logging.LogFields{"stream": stream.String()})
		},
	}
}

func (b *Broker) writeConfig(cfg serviceconf.ServiceConfig) (string, error) {
	text, err := serviceconf.Generate(cfg)
	if err != nil {
		return "", errspkg.NewConfigValidationError(err)
	}
	path := filepath.Join(b.dir, cfg.FileName())
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// allocateFresh returns a port not yet used by this startService call.
func (b *Broker) allocateFresh(used map[int]struct{}) (int, error) {
	for range maxAllocTries {
		port, err := b.allocator.Allocate()
		if err != nil {
			return 0, err
		}
		if _, seen := used[port]; !seen {
			return port, nil
		}
		b.log.Debug("Discarding reused port", logging.LogFields{"port": port})
	}
	return 0, fmt.Errorf("no unused port after %d allocations", maxAllocTries)
}

// startService runs up to retries+1 attempts of one service kind, starting
// from base. Only recoverable failures are retried, each with a new port for
// the kind. A timed-out attempt is terminated before the next one begins.
func (b *Broker) startService(ctx context.Context, base serviceconf.ServiceConfig) (serviceconf.ServiceConfig, *process.Handle, error) {
	kind := base.Kind
	maxAttempts := b.conf.Retries + 1

	ctx, span := b.tracer.Start(ctx, "protobroker.start_service",
		trace.WithAttributes(
			attribute.String("service.kind", string(kind)),
			attribute.Int("service.max_attempts", maxAttempts),
		))
	defer span.End()

	b.setServiceState(kind, StateStarting, base, nil)

	fail := func(err error) (serviceconf.ServiceConfig, *process.Handle, error) {
		b.setServiceState(kind, StateFailed, serviceconf.ServiceConfig{}, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return serviceconf.ServiceConfig{}, nil, err
	}

	used := map[int]struct{}{}
	cfg := base
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		used[cfg.Port()] = struct{}{}
		b.recordAttempt(kind, cfg)

		path, err := b.writeConfig(cfg)
		if err != nil {
			return fail(err)
		}

		actx := AttemptContext{
			SessionID:   b.sessionID,
			Service:     kind,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Port:        cfg.Port(),
			ConfigPath:  path,
			Context:     ctx,
			StartedAt:   time.Now(),
		}
		b.hooks.attemptStart(actx)
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.Int("port", cfg.Port()),
		))

		handle, err := process.LaunchAndAwaitReady(ctx, b.launchSpec(kind, path))
		actx.Duration = time.Since(actx.StartedAt)
		if err == nil {
			b.hooks.attemptReady(actx)
			b.metrics.RecordReadyPort(kind, cfg.Port())
			b.setServiceState(kind, StateReady, cfg, handle)
			span.SetAttributes(attribute.Int("service.port", cfg.Port()), attribute.Int("service.attempts", attempt))
			return cfg, handle, nil
		}

		b.hooks.attemptError(actx, err)
		lastErr = err
		if !errspkg.IsRecoverable(err) {
			return fail(err)
		}
		if attempt == maxAttempts {
			break
		}

		port, err := b.allocateFresh(used)
		if err != nil {
			return fail(fmt.Errorf("allocate %s port: %w", kind, err))
		}
		b.log.Info("Service failed to start, retrying on a new port", logging.LogFields{
			"service": kind,
			"attempt": attempt,
			"port":    port,
		})
		cfg = cfg.WithPort(port)
	}

	b.metrics.RecordExhausted(kind)
	return fail(&RetryBudgetExhaustedError{
		Service: kind,
		Configs: b.Attempts(kind),
		Last:    lastErr,
	})
}

func (b *Broker) setServiceState(kind serviceconf.Kind, state ServiceState, cfg serviceconf.ServiceConfig, handle *process.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.services[kind]
	entry.state = state
	if state == StateStarting {
		entry.attempts = nil
	}
	if cfg.Kind != "" {
		entry.config = cfg
	}
	if handle != nil {
		entry.handle = handle
	}
}

func (b *Broker) recordAttempt(kind serviceconf.Kind, cfg serviceconf.ServiceConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.services[kind]
	entry.config = cfg
	entry.attempts = append(entry.attempts, cfg.Clone())
}

// bootstrapAddress formats the loopback address for a listener port.
func bootstrapAddress(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
