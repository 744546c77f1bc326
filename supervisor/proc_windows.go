//go:build windows

package supervisor

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// killTree terminates the direct child only; tree-aware termination is not
// available here and a direct kill is the accepted fallback.
func killTree(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
