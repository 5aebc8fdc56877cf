//go:build !windows

// Package daemonlock provides the Monitor Daemon's single-owner PID-file
// lock: an atomic acquire-or-fail advisory lock, mirroring gastown's
// internal/lock package (flock_unix.go / flock_windows.go split).
package daemonlock

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// Lock holds an acquired advisory lock on a PID file.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens path (creating it if necessary) and takes a non-blocking
// exclusive advisory lock. If another process already holds the lock,
// ErrHeldByOther is returned wrapping the PID read from the existing file
// content, so the CLI can report "already running (PID N)" per spec.md §7.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening pid file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		existingPID := readPID(f)
		f.Close()
		return nil, &ErrHeldByOther{PID: existingPID}
	}

	if err := f.Truncate(0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck
		f.Close()
		return nil, fmt.Errorf("truncating pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck
		f.Close()
		return nil, fmt.Errorf("writing pid: %w", err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release unlocks and removes the PID file.
func (l *Lock) Release() error {
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN) //nolint:errcheck
	if err := l.file.Close(); err != nil {
		return err
	}
	return os.Remove(l.path)
}

func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	pid, _ := strconv.Atoi(string(buf[:n]))
	return pid
}

// ReadPID reads the PID recorded in an (possibly-held) lock file without
// acquiring the lock, for "overcode daemon status" reporting.
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
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
