//go:build windows

package daemonlock

import (
	"fmt"
	"os"
	"strconv"
)

// Lock holds an acquired advisory lock on a PID file.
type Lock struct {
	file *os.File
	path string
}

// Acquire provides a best-effort PID-file lock on Windows using exclusive
// file creation, since advisory flock is unavailable. Mirrors the
// teacher's flock_windows.go split.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			existingPID, _ := ReadPID(path)
			return nil, &ErrHeldByOther{PID: existingPID}
		}
		return nil, fmt.Errorf("opening pid file: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing pid: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release closes and removes the PID file.
func (l *Lock) Release() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	return os.Remove(l.path)
}

// ReadPID reads the PID recorded in a lock file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file: %w", err)
	}
	return pid, nil
}

// IsProcessAlive reports whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
