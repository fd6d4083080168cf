//go:build unix

// Package flock provides the directory-level advisory lock that guards a
// store directory against a second concurrent Open.
package flock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockFileName is the well-known zero-byte lock file created inside a store
// directory.
const LockFileName = ".lock"

// Acquire takes an exclusive, non-blocking advisory lock on path's lock
// file, creating it if necessary. The returned handle must stay open for
// the lifetime of the lock and be passed to Release.
func Acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flock: open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: directory already locked by another process: %w", err)
	}

	return f, nil
}

// Release drops the lock and closes the handle.
func Release(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("flock: unlock: %w", err)
	}
	return f.Close()
}
