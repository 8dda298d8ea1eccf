//go:build unix

package worker

import (
	"os/exec"
	"syscall"
)

// killProcessGroupOnCancel runs the worker in its own process group and
// kills the whole group on cancellation, so helpers the worker spawned do
// not outlive it or hold its output pipes open.
func killProcessGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
