//go:build !unix

package system

import "errors"

// AvailableSpace is not implemented on this platform.
func AvailableSpace(path string) (uint64, error) {
	return 0, errors.ErrUnsupported
}
