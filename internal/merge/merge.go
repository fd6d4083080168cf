// Package merge implements the compaction pass: it rewrites a store's
// sealed segments into a smaller set of segments holding only live
// records, with a paired hint file for each. It applies the keydir updates
// (by compare-and-swap) and unlinks the old files itself, and reports the
// new segments and removed ids the caller (the store engine) must install.
package merge

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kvforge/bitcask/internal/keydir"
	"github.com/kvforge/bitcask/internal/record"
	"github.com/kvforge/bitcask/internal/segment"
)

// Config describes one merge pass.
type Config struct {
	Dir       string
	Sealed    []*segment.Segment // candidates, ascending id order; never the active segment
	KeyDir    *keydir.KeyDir
	Threshold int64
	// StartID is the first segment id the merge output may use; ids are
	// allocated sequentially above it.
	StartID uint64
	Logger  *zap.Logger
}

// Result reports what a merge pass produced.
type Result struct {
	// NewSegments holds the freshly written, sealed output segments, in
	// ascending id order. Empty if no sealed segment held a live record.
	NewSegments []*segment.Segment
	// NextSegmentID is the id the caller should resume allocating from.
	NextSegmentID uint64
	// RemovedIDs lists the old segment ids that were unlinked.
	RemovedIDs []uint64
}

type pendingSwap struct {
	key      string
	old, new keydir.Entry
}

// Run scans Config.Sealed in ascending id order and copies every record
// still live in the keydir into fresh output segments, writing a hint
// entry alongside each copy. See SPEC_FULL.md §4.6 for the algorithm this
// implements step for step.
func Run(cfg Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(cfg.Sealed) == 0 {
		return &Result{NextSegmentID: cfg.StartID}, nil
	}

	outputID := cfg.StartID
	var outSegs []*segment.Segment
	var outHints []*os.File

	cleanup := func() {
		for _, s := range outSegs {
			s.Close()
			os.Remove(s.Path)
		}
		for _, h := range outHints {
			h.Close()
			os.Remove(h.Name())
		}
	}

	openOutput := func(id uint64) (*segment.Segment, *os.File, error) {
		seg, err := segment.OpenActive(id, segment.DataPath(cfg.Dir, id))
		if err != nil {
			return nil, nil, err
		}
		hint, err := os.Create(segment.HintPath(cfg.Dir, id))
		if err != nil {
			seg.Close()
			return nil, nil, err
		}
		return seg, hint, nil
	}

	curSeg, curHint, err := openOutput(outputID)
	if err != nil {
		return nil, fmt.Errorf("merge: open output segment %d: %w", outputID, err)
	}
	outSegs = append(outSegs, curSeg)
	outHints = append(outHints, curHint)

	var plan []pendingSwap

	for _, src := range cfg.Sealed {
		_, _, iterErr := src.Iterate(func(e segment.Entry) error {
			if e.Record.Tombstone {
				return nil
			}

			cur, ok := cfg.KeyDir.Get(string(e.Record.Key))
			if !ok || cur.SegmentID != src.ID || cur.ValueOffset != e.ValueOffset {
				return nil // superseded; not live
			}

			buf, encErr := record.Encode(e.Record.Key, e.Record.Value, e.Record.Timestamp, false)
			if encErr != nil {
				return encErr
			}

			if !curSeg.Fits(len(buf), cfg.Threshold) {
				curSeg.Seal()
				if err := curSeg.Sync(); err != nil {
					return err
				}
				if err := curHint.Sync(); err != nil {
					return err
				}

				outputID++
				ns, nh, oerr := openOutput(outputID)
				if oerr != nil {
					return oerr
				}
				curSeg, curHint = ns, nh
				outSegs = append(outSegs, curSeg)
				outHints = append(outHints, curHint)
			}

			off, appendErr := curSeg.Append(buf)
			if appendErr != nil {
				return appendErr
			}

			valueOffset := off + int64(record.HeaderSize+len(e.Record.Key))
			newEntry := keydir.Entry{
				SegmentID:   curSeg.ID,
				ValueOffset: valueOffset,
				ValueSize:   uint32(len(e.Record.Value)),
				Timestamp:   e.Record.Timestamp,
			}

			hintBuf := record.EncodeHint(record.HintEntry{
				Timestamp:   e.Record.Timestamp,
				ValueSize:   newEntry.ValueSize,
				ValueOffset: valueOffset,
				Key:         e.Record.Key,
			})
			if _, werr := curHint.Write(hintBuf); werr != nil {
				return werr
			}

			plan = append(plan, pendingSwap{key: string(e.Record.Key), old: cur, new: newEntry})
			return nil
		})
		if iterErr != nil {
			cleanup()
			return nil, fmt.Errorf("merge: scan segment %d: %w", src.ID, iterErr)
		}
	}

	curSeg.Seal()

	// A merge over segments with no surviving live records produces one
	// empty output segment; discard it so merge never grows the segment
	// count, and free its id for the next merge to reuse.
	if len(outSegs) == 1 && curSeg.Size() == 0 {
		cleanup()
		outSegs, outHints = nil, nil
		outputID = cfg.StartID
	} else {
		for _, s := range outSegs {
			if err := s.Sync(); err != nil {
				cleanup()
				return nil, fmt.Errorf("merge: fsync output segment %d: %w", s.ID, err)
			}
		}
		for _, h := range outHints {
			if err := h.Sync(); err != nil {
				cleanup()
				return nil, fmt.Errorf("merge: fsync hint file %s: %w", h.Name(), err)
			}
			if err := h.Close(); err != nil {
				cleanup()
				return nil, fmt.Errorf("merge: close hint file %s: %w", h.Name(), err)
			}
		}
		outputID++
	}

	won := 0
	for _, p := range plan {
		if cfg.KeyDir.CompareAndSwap(p.key, p.old, p.new) {
			won++
		}
	}

	removed := make([]uint64, 0, len(cfg.Sealed))
	for _, s := range cfg.Sealed {
		id := s.ID
		if err := s.Close(); err != nil {
			logger.Warn("merge: closing old segment", zap.Uint64("segment_id", id), zap.Error(err))
		}
		if err := os.Remove(segment.DataPath(cfg.Dir, id)); err != nil {
			logger.Warn("merge: removing old segment", zap.Uint64("segment_id", id), zap.Error(err))
		}
		_ = os.Remove(segment.HintPath(cfg.Dir, id)) // best-effort: a sealed segment may have no hint file
		removed = append(removed, id)
	}

	logger.Info("merge complete",
		zap.Int("segments_in", len(cfg.Sealed)),
		zap.Int("segments_out", len(outSegs)),
		zap.Int("records_kept", len(plan)),
		zap.Int("keydir_updates_applied", won),
	)

	// Re-open output segments read-only: Run wrote them via os.O_RDWR
	// handles that must not remain writable once sealed.
	sealedOut := make([]*segment.Segment, 0, len(outSegs))
	for _, s := range outSegs {
		if err := s.Close(); err != nil {
			return nil, fmt.Errorf("merge: close output segment %d: %w", s.ID, err)
		}
		ro, err := segment.OpenSealed(s.ID, s.Path)
		if err != nil {
			return nil, fmt.Errorf("merge: reopen output segment %d read-only: %w", s.ID, err)
		}
		sealedOut = append(sealedOut, ro)
	}

	return &Result{NewSegments: sealedOut, NextSegmentID: outputID, RemovedIDs: removed}, nil
}
