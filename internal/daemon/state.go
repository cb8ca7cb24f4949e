//go:build !windows

// State file persistence, wired on github.com/pelletier/go-toml/v2 —
// the format mcp-scooter already pulls in for
// internal/domain/integration/codex.go's config. Here it backs a
// small daemon-state.toml next to the socket so `status` can tell
// "daemon crashed" from "daemon never started" even when the socket
// itself is unreachable.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// State is the daemon's small persisted record.
type State struct {
	PID        int       `toml:"pid"`
	StartedAt  time.Time `toml:"started_at"`
	Socket     string    `toml:"socket"`
	ConfigPath string    `toml:"config_path"`
}

// statePath returns daemon-state.toml next to the socket file.
func statePath(socket string) string {
	return filepath.Join(filepath.Dir(socket), "daemon-state.toml")
}

// WriteState persists the daemon's state file.
func WriteState(socket string, st State) error {
	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal daemon state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(socket), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(statePath(socket), data, 0644)
}

// ReadState loads the state file, if present.
func ReadState(socket string) (State, error) {
	data, err := os.ReadFile(statePath(socket))
	if err != nil {
		return State{}, err
	}
	var st State
	if err := toml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse daemon state: %w", err)
	}
	return st, nil
}

// RemoveState deletes the state file, best-effort.
func RemoveState(socket string) {
	os.Remove(statePath(socket))
}

// ProcessAlive reports whether the pid recorded in state is running.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
