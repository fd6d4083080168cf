package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kvforge/bitcask/internal/flock"
	"github.com/kvforge/bitcask/internal/keydir"
	"github.com/kvforge/bitcask/internal/recovery"
	"github.com/kvforge/bitcask/internal/segment"
)

type engineState int32

const (
	stateClosed engineState = iota
	stateOpening
	stateOpen
	stateClosing
)

// Store is an open Bitcask directory: the active segment, every sealed
// segment, the keydir built from them at Open, and the locks that make the
// whole thing safe for one writer and many concurrent readers.
type Store struct {
	dir    string
	cfg    config
	logger *zap.Logger

	lockFile *os.File

	keyDir *keydir.KeyDir

	writeMu sync.Mutex // serializes Put/Delete/Merge

	segMu         sync.RWMutex // guards active, sealed, nextSegmentID against concurrent readers
	active        *segment.Segment
	sealed        map[uint64]*segment.Segment
	nextSegmentID uint64

	lastTimestamp int64 // monotonic clock state, touched only under writeMu

	lastMergeAt atomic.Int64 // unix nanos; zero if never merged

	state atomic.Int32

	bgCancel context.CancelFunc
	bgDone   chan struct{}
}

// Open acquires the directory lock, recovers the keydir from disk, and
// returns a ready-to-use Store. A second Open on the same directory from any
// process fails with ErrAlreadyOpen.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.readOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	} else if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("store: read-only open of %s: %w", dir, err)
	}

	lf, err := flock.Acquire(filepath.Join(dir, flock.LockFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyOpen, err)
	}

	res, err := recovery.Recover(dir, cfg.segmentThresholdBytes, cfg.readOnly)
	if err != nil {
		lf.Close()
		if errors.Is(err, recovery.ErrCorruptStore) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		if errors.Is(err, recovery.ErrNoSegments) {
			return nil, fmt.Errorf("%w: %v", ErrReadOnly, err)
		}
		return nil, fmt.Errorf("store: recover %s: %w", dir, err)
	}

	sealed := make(map[uint64]*segment.Segment, len(res.Sealed))
	maxID := res.Active.ID
	for _, s := range res.Sealed {
		sealed[s.ID] = s
		if s.ID > maxID {
			maxID = s.ID
		}
	}

	s := &Store{
		dir:           dir,
		cfg:           cfg,
		logger:        cfg.logger,
		lockFile:      lf,
		keyDir:        res.KeyDir,
		active:        res.Active,
		sealed:        sealed,
		nextSegmentID: maxID + 1,
	}
	s.state.Store(int32(stateOpen))

	s.logger.Info("store opened",
		zap.String("dir", dir),
		zap.Int("sealed_segments", len(sealed)),
		zap.Uint64("active_segment", res.Active.ID),
		zap.Int("keys", res.KeyDir.Len()),
	)

	if cfg.mergeInterval > 0 && !cfg.readOnly {
		s.startBackgroundMerge(cfg.mergeInterval)
	}

	return s, nil
}

// Close syncs the active segment, releases every file handle and the
// directory lock, and stops any background merge goroutine. A second Close
// returns ErrClosed.
func (s *Store) Close() error {
	if !s.state.CompareAndSwap(int32(stateOpen), int32(stateClosing)) {
		return ErrClosed
	}

	s.stopBackgroundMerge()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(s.active.Sync())
	keep(s.active.Close())
	for _, seg := range s.sealed {
		keep(seg.Close())
	}
	keep(flock.Release(s.lockFile))

	s.state.Store(int32(stateClosed))

	s.logger.Info("store closed", zap.String("dir", s.dir))

	return firstErr
}

func (s *Store) requireOpen() error {
	if engineState(s.state.Load()) != stateOpen {
		return ErrClosed
	}
	return nil
}

// nextTimestamp assigns a strictly increasing millisecond timestamp, called
// only while writeMu is held.
func (s *Store) nextTimestamp() int64 {
	now := time.Now().UnixMilli()
	if now <= s.lastTimestamp {
		now = s.lastTimestamp + 1
	}
	s.lastTimestamp = now
	return now
}

// segmentForID returns the segment backing a keydir entry, active or
// sealed.
func (s *Store) segmentForID(id uint64) *segment.Segment {
	s.segMu.RLock()
	defer s.segMu.RUnlock()

	if s.active.ID == id {
		return s.active
	}
	return s.sealed[id]
}

func (s *Store) getActive() *segment.Segment {
	s.segMu.RLock()
	defer s.segMu.RUnlock()
	return s.active
}

// rotateIfNeeded seals the active segment and opens a fresh one when buf
// would push it past the configured threshold. Called only while writeMu is
// held.
func (s *Store) rotateIfNeeded(bufLen int) error {
	active := s.getActive()
	if active.Fits(bufLen, s.cfg.segmentThresholdBytes) {
		return nil
	}

	if err := active.Sync(); err != nil {
		return fmt.Errorf("store: sync segment %d before rollover: %w", active.ID, err)
	}
	active.Seal()

	s.segMu.Lock()
	newID := s.nextSegmentID
	s.nextSegmentID++
	s.segMu.Unlock()

	next, err := segment.OpenActive(newID, segment.DataPath(s.dir, newID))
	if err != nil {
		return fmt.Errorf("store: open new active segment %d: %w", newID, err)
	}

	s.segMu.Lock()
	s.sealed[active.ID] = active
	s.active = next
	s.segMu.Unlock()

	s.logger.Info("segment sealed, rolled over",
		zap.Uint64("sealed_segment", active.ID),
		zap.Uint64("new_active_segment", newID),
	)

	return nil
}
