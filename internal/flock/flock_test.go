package flock_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvforge/bitcask/internal/flock"
)

func TestAcquireBlocksSecondHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, flock.LockFileName)

	f1, err := flock.Acquire(path)
	require.NoError(t, err)

	_, err = flock.Acquire(path)
	assert.Error(t, err)

	require.NoError(t, flock.Release(f1))
}

func TestAcquireSucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, flock.LockFileName)

	f1, err := flock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, flock.Release(f1))

	f2, err := flock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, flock.Release(f2))
}
