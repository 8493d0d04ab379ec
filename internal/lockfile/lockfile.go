// Package lockfile provides advisory per-path locks shared between processes.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("lock held")

// LockFile represents an exclusive lock on a file
type LockFile struct {
	path string
	file *os.File
}

// Acquire creates and locks a lockfile at the given path.
// A lock left behind by a dead process is removed and acquisition retried once.
func Acquire(path string) (*LockFile, error) {
	l, err := create(path)
	if err == nil || !os.IsExist(err) {
		return l, err
	}
	if err := clearStale(path); err != nil {
		return nil, err
	}
	l, err = create(path)
	if err != nil && os.IsExist(err) {
		return nil, fmt.Errorf("%w: %s was re-acquired by another process", ErrLocked, path)
	}
	return l, err
}

func create(path string) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	// Write our PID to the lock file
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to sync lock file: %w", err)
	}

	return &LockFile{path: path, file: f}, nil
}

// clearStale removes path if the PID inside it is no longer running.
func clearStale(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("lock file exists but cannot be read: %s", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Half-written by a process that died between create and write.
		return removeStale(path)
	}

	if processExists(pid) {
		return fmt.Errorf("%w: %s locked by PID %d", ErrLocked, path, pid)
	}
	return removeStale(path)
}

func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stale lock file cannot be removed: %w", err)
	}
	return nil
}

// processExists checks if a process with the given PID is running
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send a signal
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}

	// Process exists but we don't have permission to signal it
	return true
}

// Release releases the lock and removes the lock file
func (l *LockFile) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	return nil
}

// Path returns the path to the lock file
func (l *LockFile) Path() string {
	return l.path
}
