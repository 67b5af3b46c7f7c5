//go:build unix

package tools

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the shell in its own process group and makes
// cancellation kill the whole group, so children of the shell cannot outlive
// the timeout.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
}
