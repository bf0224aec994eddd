// Package process launches external programs and decides whether they came up
// by watching their output for a readiness pattern under a deadline.
//
// LaunchAndAwaitReady does not retry. It returns a live Handle on success and
// otherwise guarantees the process it spawned is no longer running.
package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"time"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
)

// Stream selects which output stream readiness is matched against.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

const (
	DefaultTimeout   = 30 * time.Second
	DefaultStopGrace = 5 * time.Second
	DefaultTailLines = 200

	// waitDelay bounds how long Wait keeps copying output from descendants
	// that inherited the pipes after the main process exited.
	waitDelay = 2 * time.Second
)

// Spec describes one process launch.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	// Env replaces the environment when non-nil.
	Env []string

	Pattern *regexp.Regexp
	Capture Stream
	Timeout time.Duration

	// StopGrace is how long Terminate waits after SIGTERM before SIGKILL.
	StopGrace time.Duration
	// TailLines bounds how many lines per stream are kept for diagnostics.
	TailLines int
	// OnLine, when set, observes every output line. It runs on the goroutine
	// copying the stream and must not block.
	OnLine func(stream Stream, line string)
}

func (s Spec) withDefaults() Spec {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.StopGrace <= 0 {
		s.StopGrace = DefaultStopGrace
	}
	if s.TailLines <= 0 {
		s.TailLines = DefaultTailLines
	}
	return s
}

// LaunchAndAwaitReady spawns spec.Command and blocks until a line of the
// capture stream matches spec.Pattern, the process exits, the timeout
// elapses, or ctx is done.
//
// On exit before a match it returns *errors.ProcessCrashedError. On timeout it
// terminates the process, waits for it to be gone and returns
// *errors.ReadinessTimeoutError. A spawn failure is a *errors.LaunchError.
func LaunchAndAwaitReady(ctx context.Context, spec Spec) (*Handle, error) {
	if spec.Command == "" {
		return nil, errspkg.NewConfigValidationError(errors.New("process: command is required"))
	}
	if spec.Pattern == nil {
		return nil, errspkg.NewConfigValidationError(errors.New("process: readiness pattern is required"))
	}
	spec = spec.withDefaults()

	h, err := start(spec)
	if err != nil {
		return nil, &errspkg.LaunchError{Command: spec.Command, Err: err}
	}

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	select {
	case <-h.ready:
		return h, nil
	case <-h.done:
		// All output has been written by the time done is closed, so a match
		// on the final lines is still seen here.
		select {
		case <-h.ready:
			return h, nil
		default:
		}
		h.sweepGroup()
		code, _ := h.ExitCode()
		return nil, &errspkg.ProcessCrashedError{
			Command:  spec.Command,
			ExitCode: code,
			Stdout:   h.Stdout(),
			Stderr:   h.Stderr(),
		}
	case <-timer.C:
		_ = h.Terminate(context.Background())
		return nil, &errspkg.ReadinessTimeoutError{
			Command: spec.Command,
			Timeout: spec.Timeout,
			Stdout:  h.Stdout(),
			Stderr:  h.Stderr(),
		}
	case <-ctx.Done():
		_ = h.Terminate(context.Background())
		return nil, fmt.Errorf("await %s: %w", spec.Command, ctx.Err())
	}
}

func start(spec Spec) (*Handle, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	h := &Handle{
		cmd:     cmd,
		command: spec.Command,
		grace:   spec.StopGrace,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	var readyOnce sync.Once
	markReady := func() { readyOnce.Do(func() { close(h.ready) }) }

	stdoutPattern, stderrPattern := spec.Pattern, (*regexp.Regexp)(nil)
	if spec.Capture == Stderr {
		stdoutPattern, stderrPattern = nil, spec.Pattern
	}
	h.stdout = newLineWriter(Stdout, spec.TailLines, stdoutPattern, markReady, spec.OnLine)
	h.stderr = newLineWriter(Stderr, spec.TailLines, stderrPattern, markReady, spec.OnLine)
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h.pgid = processGroup(cmd)
	go h.wait()
	return h, nil
}
