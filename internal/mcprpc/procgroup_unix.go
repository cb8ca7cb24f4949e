//go:build !windows

package mcprpc

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttrs places a spawned child in its own process group, so
// killProcessGroup can reach a wrapper command's own children (npx
// spawning the real MCP server, for instance) instead of leaving them
// orphaned when the daemon forcibly terminates the direct child.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to cmd's whole process group. Falls
// back to killing just the direct process if the group signal fails
// (e.g. Setpgid didn't take before the child exited on its own).
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}
