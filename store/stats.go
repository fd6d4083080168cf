package store

import (
	"time"

	"github.com/kvforge/bitcask/internal/keydir"
	"github.com/kvforge/bitcask/internal/record"
)

// Stats is a read-only snapshot of store health, grounded in the engine's
// own bookkeeping rather than a fresh directory scan.
type Stats struct {
	KeyCount      int
	SegmentCount  int
	LiveBytes     int64
	TotalBytes    int64
	LastMergeAt   time.Time
	ActiveSegment uint64
}

// Stats reports a point-in-time snapshot of store health. It never mutates
// state and is safe to call concurrently with any other operation.
func (s *Store) Stats() (Stats, error) {
	if err := s.requireOpen(); err != nil {
		return Stats{}, err
	}

	s.segMu.RLock()
	segCount := len(s.sealed) + 1
	var total int64
	total += s.active.Size()
	for _, seg := range s.sealed {
		total += seg.Size()
	}
	activeID := s.active.ID
	s.segMu.RUnlock()

	var live int64
	_ = s.keyDir.Fold(func(key string, e keydir.Entry) error {
		live += int64(record.Size(len(key), int(e.ValueSize), false))
		return nil
	})

	var lastMerge time.Time
	if nanos := s.lastMergeAt.Load(); nanos != 0 {
		lastMerge = time.Unix(0, nanos)
	}

	return Stats{
		KeyCount:      s.keyDir.Len(),
		SegmentCount:  segCount,
		LiveBytes:     live,
		TotalBytes:    total,
		LastMergeAt:   lastMerge,
		ActiveSegment: activeID,
	}, nil
}
