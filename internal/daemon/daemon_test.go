//go:build !windows

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileAcquireRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpgate.pid")

	first, err := AcquirePIDFile(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = AcquirePIDFile(path)
	assert.Error(t, err)
}

func TestPIDFileReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpgate.pid")

	first, err := AcquirePIDFile(path)
	require.NoError(t, err)
	first.Release()

	second, err := AcquirePIDFile(path)
	require.NoError(t, err)
	second.Release()
}

func TestStateRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "mcp.sock")
	st := State{PID: 12345, StartedAt: time.Now().Truncate(time.Second), Socket: socket, ConfigPath: "/tmp/cfg.yaml"}

	require.NoError(t, WriteState(socket, st))
	defer RemoveState(socket)

	read, err := ReadState(socket)
	require.NoError(t, err)
	assert.Equal(t, st.PID, read.PID)
	assert.Equal(t, st.Socket, read.Socket)
	assert.Equal(t, st.ConfigPath, read.ConfigPath)
}

func TestAlreadyRunningFalseWhenNoSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	assert.False(t, AlreadyRunning(socket))
}

func TestWaitForSocketGoneAlreadyAbsent(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "never-created.sock")
	assert.True(t, WaitForSocketGone(socket, 100*time.Millisecond))
}

func TestProcessAliveCurrentProcess(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
}
