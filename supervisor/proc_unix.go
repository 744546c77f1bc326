//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the command in its own process group so the whole
// descendant tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree force-terminates the process and its descendants. Several launch
// strategies spawn through an intermediary shell, so signalling only the
// direct child would orphan the real workload. Falls back to a direct kill
// when the group signal fails.
func killTree(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
