package system

import (
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

// SpaceMargin is the fraction added on top of a file's size to cover
// filesystem overhead.
const SpaceMargin = 0.1

// Required returns n plus SpaceMargin.
func Required(n uint64) uint64 {
	return n + uint64(float64(n)*SpaceMargin)
}

// HasSufficientSpace reports whether path's filesystem can take need bytes
// plus SpaceMargin, and how much is available.
func HasSufficientSpace(path string, need uint64) (bool, uint64, error) {
	avail, err := AvailableSpace(path)
	if err != nil {
		return false, 0, err
	}
	return avail >= Required(need), avail, nil
}

// CheckSpace returns a DiskSpaceError when path cannot take need bytes.
// A failed free-space query passes.
func CheckSpace(path string, need uint64) error {
	ok, avail, err := HasSufficientSpace(path, need)
	if err != nil || ok {
		return nil
	}
	return fetcherrors.DiskSpaceError(avail, Required(need))
}
