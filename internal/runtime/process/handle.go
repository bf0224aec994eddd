package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Handle owns exactly one running OS process.
type Handle struct {
	cmd     *exec.Cmd
	command string
	grace   time.Duration
	// pgid is recorded at spawn so the group can be signalled after the
	// leader was reaped.
	pgid int

	stdout *lineWriter
	stderr *lineWriter

	ready chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	exited   bool
	exitCode int
	waitErr  error
	swept    bool
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.stdout.flush()
	h.stderr.flush()

	h.mu.Lock()
	h.exited = true
	h.waitErr = err
	h.exitCode = -1
	if state := h.cmd.ProcessState; state != nil {
		h.exitCode = state.ExitCode()
	}
	h.mu.Unlock()
	close(h.done)
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	if h == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Command returns the executable that was launched.
func (h *Handle) Command() string {
	if h == nil {
		return ""
	}
	return h.command
}

// Done is closed once the process has exited and its output was drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns the exit status, or false while the process is running.
// A process killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

// Running reports whether the process has not exited yet.
func (h *Handle) Running() bool {
	if h == nil {
		return false
	}
	_, exited := h.ExitCode()
	return !exited
}

// Stdout returns the retained tail of standard output.
func (h *Handle) Stdout() string { return h.stdout.String() }

// Stderr returns the retained tail of standard error.
func (h *Handle) Stderr() string { return h.stderr.String() }

// Terminate stops the process group: SIGTERM first, SIGKILL once the grace
// period runs out. It returns after the process is gone. Members of the group
// that outlive the leader are killed as well, also when the leader had already
// exited on its own. Terminating a nil or already terminated handle is a no-op.
func (h *Handle) Terminate(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if !h.Running() {
		h.sweepGroup()
		return nil
	}

	_ = interruptGroup(h.cmd, h.pgid)

	grace := time.NewTimer(h.grace)
	defer grace.Stop()

	select {
	case <-h.done:
		h.sweepGroup()
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	_ = killGroup(h.cmd, h.pgid)
	select {
	case <-h.done:
		h.sweepGroup()
		return nil
	case <-ctx.Done():
		// SIGKILL was sent; give the reaper a moment before giving up.
		select {
		case <-h.done:
			h.sweepGroup()
			return nil
		case <-time.After(waitDelay):
			return fmt.Errorf("terminate %s (pid %d): %w", h.command, h.Pid(), ctx.Err())
		}
	}
}

// sweepGroup kills whatever is left in the process group once the leader has
// exited. It signals at most once so a recycled group id is never hit later.
func (h *Handle) sweepGroup() {
	h.mu.Lock()
	if h.swept || !h.exited {
		h.mu.Unlock()
		return
	}
	h.swept = true
	h.mu.Unlock()
	_ = killGroup(h.cmd, h.pgid)
}
