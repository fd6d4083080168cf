package keydir_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kvforge/bitcask/internal/keydir"
)

func TestPutGetRemove(t *testing.T) {
	kd := keydir.New()

	_, existed := kd.Put("a", keydir.Entry{SegmentID: 1, ValueOffset: 10, ValueSize: 2, Timestamp: 1})
	assert.False(t, existed)

	e, ok := kd.Get("a")
	assert.True(t, ok)
	assert.EqualValues(t, 1, e.SegmentID)

	prev, existed := kd.Put("a", keydir.Entry{SegmentID: 2, ValueOffset: 20, ValueSize: 3, Timestamp: 2})
	assert.True(t, existed)
	assert.EqualValues(t, 1, prev.SegmentID)

	removed, existed := kd.Remove("a")
	assert.True(t, existed)
	assert.EqualValues(t, 2, removed.SegmentID)

	_, ok = kd.Get("a")
	assert.False(t, ok)
}

func TestKeysSnapshot(t *testing.T) {
	kd := keydir.New()
	kd.Put("a", keydir.Entry{})
	kd.Put("b", keydir.Entry{})

	keys := kd.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, 2, kd.Len())
}

func TestFoldIsPointInTimeSnapshot(t *testing.T) {
	kd := keydir.New()
	kd.Put("a", keydir.Entry{ValueSize: 1})
	kd.Put("b", keydir.Entry{ValueSize: 2})

	var seen []string
	err := kd.Fold(func(key string, e keydir.Entry) error {
		seen = append(seen, key)
		if key == "a" {
			kd.Put("c", keydir.Entry{ValueSize: 3})
		}
		return nil
	})
	assert.NoError(t, err)
	sort.Strings(seen)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestCompareAndSwap(t *testing.T) {
	kd := keydir.New()
	old := keydir.Entry{SegmentID: 1, ValueOffset: 10}
	kd.Put("a", old)

	next := keydir.Entry{SegmentID: 2, ValueOffset: 20}
	assert.True(t, kd.CompareAndSwap("a", old, next))

	e, _ := kd.Get("a")
	assert.Equal(t, next, e)

	// A stale CAS (old no longer matches) must fail without side effects.
	assert.False(t, kd.CompareAndSwap("a", old, keydir.Entry{SegmentID: 3}))
	e, _ = kd.Get("a")
	assert.Equal(t, next, e)
}
