//go:build unix

// Package system reports host conditions that affect downloads.
package system

import (
	"fmt"
	"syscall"
)

// AvailableSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func AvailableSpace(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
