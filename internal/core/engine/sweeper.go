package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/tollgate/tollgate/internal/metrics"
)

// Sweeper periodically evicts stale window entries so memory tracks the
// active caller set instead of every caller ever seen. A tick failure is
// logged and retried on the next tick; it is never fatal.
type Sweeper struct {
	store    *WindowStore
	interval time.Duration
	clock    func() time.Time
	logger   *logging.Logger

	lastTick atomic.Int64
}

// NewSweeper builds a sweeper for the given store. The interval should be a
// few multiples of the smallest configured window.
func NewSweeper(store *WindowStore, interval time.Duration, clock func() time.Time, logger *logging.Logger) *Sweeper {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sweeper) tick() {
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Error("Sweep iteration failed, retrying next tick",
					zap.Any("panic", r))
			}
		}
	}()

	start := time.Now()
	removed := s.Sweep(s.clock())
	s.lastTick.Store(start.UnixNano())

	metrics.RecordSweep(removed, time.Since(start))
	metrics.SetActiveEntries(int64(s.store.Len()))

	if s.logger != nil && removed > 0 {
		s.logger.Debug("Swept stale rate limit entries",
			zap.Int("removed", removed),
			zap.Int("remaining", s.store.Len()))
	}
}

// LastSweep reports when the most recent sweep pass completed, or the zero
// time if no pass has run yet.
func (s *Sweeper) LastSweep() time.Time {
	nanos := s.lastTick.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// Interval reports the configured sweep interval.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Sweep removes every entry whose window ended more than one full window ago
// and reports how many were removed. Removal re-checks staleness under the
// shard lock, so a key being incremented concurrently is left alone.
func (s *Sweeper) Sweep(now time.Time) int {
	removed := 0
	for _, key := range s.store.StaleKeys(now) {
		if s.store.RemoveStale(key, now) {
			removed++
		}
	}
	return removed
}
