//go:build !windows

package daemon

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PIDFile guards against two daemons racing to bind the same socket,
// via an exclusive, non-blocking flock on a dedicated file — wired on
// golang.org/x/sys/unix, which the cobra/tablewriter stack already
// pulls in transitively.
type PIDFile struct {
	path string
	file *os.File
}

// AcquirePIDFile opens (creating if needed) and locks path. Returns an
// error if another process already holds the lock.
func AcquirePIDFile(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open pidfile %q: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon already running (pidfile %q is locked): %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		f.Close()
		return nil, err
	}

	return &PIDFile{path: path, file: f}, nil
}

// Release unlocks and removes the pidfile.
func (p *PIDFile) Release() {
	unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	p.file.Close()
	os.Remove(p.path)
}
