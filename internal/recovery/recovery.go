// Package recovery discovers the segment and hint files in a store
// directory and replays them to reconstruct the keydir, choosing (or
// creating) the segment that continues as active.
package recovery

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kvforge/bitcask/internal/keydir"
	"github.com/kvforge/bitcask/internal/record"
	"github.com/kvforge/bitcask/internal/segment"
)

// ErrCorruptStore is returned when a non-highest-id segment's tail is
// corrupt: an intermediate segment is expected to be complete, so this is
// treated as unrecoverable structural corruption rather than an incomplete
// last write.
var ErrCorruptStore = errors.New("recovery: corrupt store")

// ErrNoSegments is returned by a read-only Recover against a directory that
// holds no segment files: there is nothing to read, and a read-only open
// must not create the initial segment the way a writable open would.
var ErrNoSegments = errors.New("recovery: no segments to open read-only")

// Result is the outcome of a successful recovery pass.
type Result struct {
	KeyDir *keydir.KeyDir
	// Sealed holds every segment that is not the active segment, in
	// ascending id order, already opened read-only.
	Sealed []*segment.Segment
	// Active is the segment the engine should keep appending to.
	Active *segment.Segment
}

// Recover lists dir, classifies files by segment id, replays each segment
// in ascending id order (via its hint file when valid, else by full
// iteration), and decides which segment becomes active. A highest segment
// that was replayed from a hint file stays sealed, so a fresh active
// segment is created above it. When readOnly is true, Recover never creates
// or writes a file: a directory with no segments fails with ErrNoSegments,
// a torn tail on the highest segment is skipped but left on disk, and a
// highest segment that would otherwise roll over to a fresh active segment
// is instead kept as the active reference with its existing read-only
// handle.
func Recover(dir string, threshold int64, readOnly bool) (*Result, error) {
	ids, err := discoverSegmentIDs(dir)
	if err != nil {
		return nil, err
	}

	kd := keydir.New()

	if len(ids) == 0 {
		if readOnly {
			return nil, fmt.Errorf("%w: %s", ErrNoSegments, dir)
		}
		active, err := segment.OpenActive(0, segment.DataPath(dir, 0))
		if err != nil {
			return nil, fmt.Errorf("recovery: create initial active segment: %w", err)
		}
		return &Result{KeyDir: kd, Active: active}, nil
	}

	sealed := make([]*segment.Segment, 0, len(ids))
	highestIdx := len(ids) - 1
	highestHinted := false

	for i, id := range ids {
		isHighest := i == highestIdx

		if entries, ok := tryReadHint(segment.HintPath(dir, id)); ok {
			for _, e := range entries {
				kd.Put(string(e.Key), keydir.Entry{
					SegmentID:   id,
					ValueOffset: e.ValueOffset,
					ValueSize:   e.ValueSize,
					Timestamp:   e.Timestamp,
				})
			}

			seg, err := segment.OpenSealed(id, segment.DataPath(dir, id))
			if err != nil {
				return nil, fmt.Errorf("recovery: open segment %d: %w", id, err)
			}
			sealed = append(sealed, seg)
			if isHighest {
				highestHinted = true
			}
			continue
		}

		seg, err := segment.OpenSealed(id, segment.DataPath(dir, id))
		if err != nil {
			return nil, fmt.Errorf("recovery: open segment %d: %w", id, err)
		}

		lastGood, clean, iterErr := seg.Iterate(func(e segment.Entry) error {
			if e.Record.Tombstone {
				kd.Remove(string(e.Record.Key))
			} else {
				kd.Put(string(e.Record.Key), keydir.Entry{
					SegmentID:   id,
					ValueOffset: e.ValueOffset,
					ValueSize:   uint32(len(e.Record.Value)),
					Timestamp:   e.Record.Timestamp,
				})
			}
			return nil
		})
		if iterErr != nil {
			seg.Close()
			return nil, fmt.Errorf("recovery: iterate segment %d: %w", id, iterErr)
		}

		if !clean {
			if !isHighest {
				seg.Close()
				return nil, fmt.Errorf("%w: segment %016x has a torn tail", ErrCorruptStore, id)
			}

			if !readOnly {
				seg.Close()
				if err := truncateSegmentFile(segment.DataPath(dir, id), lastGood); err != nil {
					return nil, fmt.Errorf("recovery: truncate segment %d: %w", id, err)
				}
				seg, err = segment.OpenSealed(id, segment.DataPath(dir, id))
				if err != nil {
					return nil, fmt.Errorf("recovery: reopen truncated segment %d: %w", id, err)
				}
			}
		}

		sealed = append(sealed, seg)
	}

	highest := sealed[highestIdx]
	var active *segment.Segment

	switch {
	case readOnly:
		// Never create or reopen for write: keep the highest segment as
		// the active reference via its existing read-only handle,
		// regardless of how it compares to threshold.
		sealed = sealed[:highestIdx]
		active = highest
	case highest.Size() < threshold && !highestHinted:
		sealed = sealed[:highestIdx]
		if err := highest.Close(); err != nil {
			return nil, fmt.Errorf("recovery: close %d before reopening active: %w", highest.ID, err)
		}
		active, err = segment.OpenActive(highest.ID, segment.DataPath(dir, highest.ID))
		if err != nil {
			return nil, fmt.Errorf("recovery: reopen %d as active: %w", highest.ID, err)
		}
	default:
		nextID := highest.ID + 1
		active, err = segment.OpenActive(nextID, segment.DataPath(dir, nextID))
		if err != nil {
			return nil, fmt.Errorf("recovery: create active segment %d: %w", nextID, err)
		}
	}

	return &Result{KeyDir: kd, Sealed: sealed, Active: active}, nil
}

func discoverSegmentIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recovery: read directory: %w", err)
	}

	seen := make(map[uint64]bool)
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		// Only a .data file anchors a segment id. A .hint file with no
		// paired .data file is an orphan left by a crash between merge's
		// two unlink calls (see internal/merge) and must be ignored.
		if !strings.HasSuffix(ent.Name(), segment.DataSuffix) {
			continue
		}
		if id, ok := segment.ParseID(ent.Name()); ok {
			seen[id] = true
		}
	}

	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// tryReadHint parses a hint file fully; ok is false if the file does not
// exist or fails to parse cleanly, in which case the caller must fall back
// to iterating the paired segment.
func tryReadHint(path string) ([]record.HintEntry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entries []record.HintEntry
	offset := 0
	for offset < len(data) {
		hdr, err := record.DecodeHintHeader(data[offset:])
		if err != nil {
			return nil, false
		}

		keyStart := offset + record.HintHeaderSize
		keyEnd := keyStart + int(hdr.KeySize)
		if keyEnd > len(data) {
			return nil, false
		}

		entries = append(entries, record.HintEntry{
			Timestamp:   hdr.Timestamp,
			ValueSize:   hdr.ValueSize,
			ValueOffset: hdr.ValueOffset,
			Key:         append([]byte(nil), data[keyStart:keyEnd]...),
		})

		offset = keyEnd
	}

	return entries, true
}

func truncateSegmentFile(path string, offset int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(offset); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return nil
}
