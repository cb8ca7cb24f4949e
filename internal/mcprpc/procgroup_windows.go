//go:build windows

package mcprpc

import "os/exec"

// setProcAttrs is a no-op on Windows: exec.Cmd has no process-group
// equivalent to Setpgid here.
func setProcAttrs(cmd *exec.Cmd) {}

// killProcessGroup kills the direct child process; Windows job objects
// would be required to reach its own children, which is out of scope.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
