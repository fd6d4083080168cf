//go:build windows

package flock

import (
	"fmt"
	"os"
)

// LockFileName is the well-known zero-byte lock file created inside a store
// directory.
const LockFileName = ".lock"

// Acquire takes an exclusive lock on path's lock file by creating it with
// O_EXCL; a second Acquire for the same path fails until Release removes
// the file.
func Acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flock: directory already locked by another process: %w", err)
	}
	return f, nil
}

// Release removes the lock file and closes the handle.
func Release(f *os.File) error {
	name := f.Name()
	if err := f.Close(); err != nil {
		return fmt.Errorf("flock: close: %w", err)
	}
	return os.Remove(name)
}
