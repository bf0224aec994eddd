//go:build windows

package process

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}

func processGroup(cmd *exec.Cmd) int { return 0 }

func interruptGroup(cmd *exec.Cmd, pgid int) error {
	return killGroup(cmd, pgid)
}

func killGroup(cmd *exec.Cmd, _ int) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
