package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startBackgroundMerge runs Merge on a ticker until stopBackgroundMerge
// (called by Close) cancels it. It takes the same write-lock path as an explicit
// Merge call and is subject to the same merge_min_segments floor.
func (s *Store) startBackgroundMerge(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.bgDone = make(chan struct{})

	go func() {
		defer close(s.bgDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Merge(); err != nil {
					s.logger.Warn("background merge failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Store) stopBackgroundMerge() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	<-s.bgDone
}
