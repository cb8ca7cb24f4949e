//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mcp-scooter/mcpgate/internal/ipc"
)

// foregroundEnvVar marks a re-exec'd process as the detached daemon
// child, so it runs the real daemon loop instead of re-exec'ing again.
const foregroundEnvVar = "MCPGATE_DAEMON_FOREGROUND"

// IsForegroundChild reports whether the current process is the
// already-daemonized child (set by Daemonize before re-exec).
func IsForegroundChild() bool {
	return os.Getenv(foregroundEnvVar) == "1"
}

// Daemonize detaches the daemon from the caller's terminal. Go cannot
// call raw fork(2) safely once the runtime has started goroutines, so
// this re-execs the current binary once, in a new session
// (SysProcAttr.Setsid), with stdio bound to /dev/null; that detached
// child owns the socket. No second fork follows, so the child stays a
// session leader. The caller's process exits immediately after the
// re-exec succeeds.
func Daemonize() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open /dev/null: %w", err)
	}
	defer devnull.Close()

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), foregroundEnvVar+"=1")
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon process: %w", err)
	}

	return nil
}

// WaitForSocketGone polls until socketPath no longer exists or the
// timeout elapses, the settle-after-shutdown behavior the original
// daemon_stop performed with a fixed half-second sleep (§3 of
// SPEC_FULL, "SUPPLEMENTED FEATURES").
func WaitForSocketGone(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); os.IsNotExist(err) {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	_, err := os.Stat(socketPath)
	return os.IsNotExist(err)
}

// Stop sends a shutdown command to the running daemon over its
// control socket and waits briefly for teardown to finish.
func Stop(socketPath string) error {
	client := ipc.NewSocketClient(socketPath, ipc.ControlTimeout)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("daemon not reachable at %q: %w", socketPath, err)
	}
	resp, err := client.SendRequest(map[string]interface{}{"command": "shutdown"})
	if err != nil {
		return fmt.Errorf("shutdown request failed: %w", err)
	}
	if ok, _ := resp["success"].(bool); !ok {
		return fmt.Errorf("daemon refused shutdown: %v", resp["error"])
	}

	WaitForSocketGone(socketPath, 2*time.Second)
	return nil
}
