//go:build !unix

package worker

import "os/exec"

// Without process groups only the worker itself is killed.
func killProcessGroupOnCancel(cmd *exec.Cmd) {}
