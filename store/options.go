package store

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSegmentThresholdBytes is the default rollover size for the
	// active segment, 128 MiB.
	DefaultSegmentThresholdBytes = 128 << 20
	// MinSegmentThresholdBytes is the smallest threshold Open accepts.
	MinSegmentThresholdBytes = 1 << 10
	// DefaultMergeMinSegments is the fewest sealed segments Merge will act
	// on; below this, Merge is a no-op.
	DefaultMergeMinSegments = 2
)

type config struct {
	segmentThresholdBytes int64
	syncOnPut             bool
	readOnly              bool
	mergeMinSegments      int
	mergeInterval         time.Duration
	logger                *zap.Logger
}

func defaultConfig() config {
	return config{
		segmentThresholdBytes: DefaultSegmentThresholdBytes,
		mergeMinSegments:      DefaultMergeMinSegments,
		logger:                zap.NewNop(),
	}
}

// Option configures a Store at Open time.
type Option func(*config)

// WithSegmentThresholdBytes sets the active segment's rollover threshold.
// Values below MinSegmentThresholdBytes are clamped up to it.
func WithSegmentThresholdBytes(n int64) Option {
	return func(c *config) {
		if n < MinSegmentThresholdBytes {
			n = MinSegmentThresholdBytes
		}
		c.segmentThresholdBytes = n
	}
}

// WithSyncOnPut makes Put fsync the active segment before returning.
func WithSyncOnPut(sync bool) Option {
	return func(c *config) { c.syncOnPut = sync }
}

// WithReadOnly opens the store without creating the directory or acquiring
// write access; Put, Delete, and Merge fail with ErrReadOnly.
func WithReadOnly(readOnly bool) Option {
	return func(c *config) { c.readOnly = readOnly }
}

// WithMergeMinSegments sets the fewest sealed segments Merge requires
// before it does any work.
func WithMergeMinSegments(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.mergeMinSegments = n
	}
}

// WithMergeInterval starts a background goroutine that calls Merge on this
// period. Zero (the default) disables the background policy.
func WithMergeInterval(d time.Duration) Option {
	return func(c *config) { c.mergeInterval = d }
}

// WithLogger injects a structured logger for lifecycle (open, close,
// segment rollover) and merge events; recovery itself logs nothing. The
// default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
