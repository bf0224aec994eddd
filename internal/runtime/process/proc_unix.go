//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts the child in its own process group so the
// launcher script and the JVM it starts are signalled together.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// processGroup returns the group id of a child started with
// configureProcessGroup. It equals the leader's pid and stays valid after the
// leader is reaped while other members are alive.
func processGroup(cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

func interruptGroup(cmd *exec.Cmd, pgid int) error {
	return signalGroup(cmd, pgid, unix.SIGTERM)
}

func killGroup(cmd *exec.Cmd, pgid int) error {
	return signalGroup(cmd, pgid, unix.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, pgid int, sig syscall.Signal) error {
	if pgid > 0 {
		// Negative PGID targets the whole group.
		err := unix.Kill(-pgid, sig)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}
