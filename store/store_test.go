package store_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvforge/bitcask/store"
)

func mustOpen(t *testing.T, dir string, opts ...store.Option) *store.Store {
	t.Helper()

	s, err := store.Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func segmentFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	n := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".data" {
			n++
		}
	}
	return n
}

// S1: basic put/get/list survives a close+reopen.
func TestOpenPutGetListSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s := mustOpen(t, dir)
	require.NoError(t, s.Put("alpha", []byte("1")))
	require.NoError(t, s.Put("beta", []byte("22")))

	v, err := s.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	v, err = s.Get("beta")
	require.NoError(t, err)
	assert.Equal(t, "22", string(v))

	keys, err := s.ListKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, keys)

	require.NoError(t, s.Close())

	s2 := mustOpen(t, dir)
	v, err = s2.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
	v, err = s2.Get("beta")
	require.NoError(t, err)
	assert.Equal(t, "22", string(v))
}

// S2: repeated overwrite of one key, synced, then reopened.
func TestPutOverwriteSurvivesSyncAndReopen(t *testing.T) {
	dir := t.TempDir()

	s := mustOpen(t, dir)
	require.NoError(t, s.Put("k", []byte("a")))
	require.NoError(t, s.Put("k", []byte("bb")))
	require.NoError(t, s.Put("k", []byte("ccc")))
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	s2 := mustOpen(t, dir)
	v, err := s2.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "ccc", string(v))
	assert.Equal(t, 1, segmentFiles(t, dir))
}

// S3: a small segment threshold forces rollover across many keys; merge
// reduces segment count without losing any key.
func TestSmallThresholdRollsOverAndMergeShrinksSegments(t *testing.T) {
	dir := t.TempDir()

	s := mustOpen(t, dir, store.WithSegmentThresholdBytes(64), store.WithMergeMinSegments(2))

	want := make(map[string]string, 100)
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("key-%03d", i)
		v := fmt.Sprintf("v-%d", i)
		want[k] = v
		require.NoError(t, s.Put(k, []byte(v)))
	}

	before := segmentFiles(t, dir)
	assert.GreaterOrEqual(t, before, 2)

	keys, err := s.ListKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 100)

	require.NoError(t, s.Merge())

	keys, err = s.ListKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 100)

	for k, v := range want {
		got, err := s.Get(k)
		require.NoError(t, err)
		assert.Equal(t, v, string(got))
	}

	after := segmentFiles(t, dir)
	assert.LessOrEqual(t, after, before)
}

// S4: delete then merge leaves no trace of the key on disk.
func TestDeleteThenMergeRemovesRecord(t *testing.T) {
	dir := t.TempDir()

	s := mustOpen(t, dir, store.WithSegmentThresholdBytes(store.MinSegmentThresholdBytes), store.WithMergeMinSegments(1))

	big := make([]byte, 700)
	require.NoError(t, s.Put("x", []byte("v1")))
	// force "x"'s segment to seal so it becomes merge-eligible
	require.NoError(t, s.Put("y", big))
	require.NoError(t, s.Put("z", big))

	require.NoError(t, s.Delete("x"))
	_, err := s.Get("x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Merge())

	_, err = s.Get("x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Close())

	s2 := mustOpen(t, dir)
	_, err = s2.Get("x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".data" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "v1", "no surviving segment should contain the deleted record's value")
	}
}

// S5: a torn tail on the highest-id segment is truncated away, not fatal.
func TestTornTailTruncatesCleanly(t *testing.T) {
	dir := t.TempDir()

	s := mustOpen(t, dir)
	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Put("b", []byte("22")))
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	path := filepath.Join(dir, "0000000000000000.data")
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-3))

	s2, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	_, err = s2.Get("a")
	require.NoError(t, err)
}

// S6: a flipped bit inside a non-highest sealed segment fails Open outright.
func TestCorruptIntermediateSegmentFailsOpen(t *testing.T) {
	dir := t.TempDir()

	big := make([]byte, 700) // big enough that two puts exceed the minimum threshold and roll over
	s := mustOpen(t, dir, store.WithSegmentThresholdBytes(store.MinSegmentThresholdBytes))
	require.NoError(t, s.Put("a", big))
	require.NoError(t, s.Put("b", big))
	require.NoError(t, s.Close())

	require.GreaterOrEqual(t, segmentFiles(t, dir), 2)

	path := filepath.Join(dir, "0000000000000000.data")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = store.Open(dir)
	assert.ErrorIs(t, err, store.ErrCorruptStore)
}

func TestDeleteOfAbsentKeyIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)

	require.NoError(t, s.Delete("never-existed"))

	_, err := s.Get("never-existed")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)
	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Close())

	ro, err := store.Open(dir, store.WithReadOnly(true))
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	v, err := ro.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	assert.ErrorIs(t, ro.Put("b", []byte("2")), store.ErrReadOnly)
	assert.ErrorIs(t, ro.Delete("a"), store.ErrReadOnly)
	assert.ErrorIs(t, ro.Merge(), store.ErrReadOnly)
}

func TestReadOnlyOpenNeverCreatesFiles(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)
	require.NoError(t, s.Put("a", make([]byte, 2*store.MinSegmentThresholdBytes)))
	require.NoError(t, s.Close())

	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	// A smaller threshold than the writer used would force a new active
	// segment in read-write mode; read-only must not create one.
	ro, err := store.Open(dir, store.WithReadOnly(true), store.WithSegmentThresholdBytes(store.MinSegmentThresholdBytes))
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "read-only open must not create any file")
}

func TestReadOnlyOpenOnEmptyDirectoryFails(t *testing.T) {
	dir := t.TempDir()

	_, err := store.Open(dir, store.WithReadOnly(true))
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

func TestSecondOpenOnSameDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	mustOpen(t, dir)

	_, err := store.Open(dir)
	assert.ErrorIs(t, err, store.ErrAlreadyOpen)
}

func TestOperationsAfterCloseFail(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get("a")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Put("a", []byte("1")), store.ErrClosed)
}

func TestFoldVisitsPointInTimeSnapshot(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)

	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Put("b", []byte("2")))

	seen := map[string]string{}
	err := s.Fold(func(key string, value []byte) error {
		seen[key] = string(value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)
}

func TestStatsReportsKeyAndSegmentCounts(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir, store.WithSegmentThresholdBytes(32))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("k%d", i), []byte("value-bytes")))
	}

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 10, st.KeyCount)
	assert.GreaterOrEqual(t, st.SegmentCount, 1)
	assert.True(t, st.LastMergeAt.IsZero())

	require.NoError(t, s.Merge())
	_, err = s.Stats()
	require.NoError(t, err)
}

func TestErrorsAreWrappedForErrorsIs(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen(t, dir)

	_, err := s.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = s.Put("", []byte("v"))
	assert.ErrorIs(t, err, store.ErrEmptyKey)
}
