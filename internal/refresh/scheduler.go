// Package refresh runs the background dataset refresh loop. The HTTP
// surface triggers refreshes on demand; this package adds an interval-based
// schedule with exponential backoff after failures.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthdata/market-engine/internal/dataset"
)

// Refresher re-checks every dataset family. Implemented by dataset.Store.
type Refresher interface {
	Refresh(ctx context.Context) (*dataset.Report, error)
}

// Scheduler refreshes the dataset store on a fixed interval. After a failed
// cycle it retries with exponential backoff instead of waiting a full
// interval, so a transient source outage does not leave the data stale for
// long.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. interval must be positive.
func New(refresher Refresher, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		logger:    logger,
	}
}

// Run executes the refresh loop until the context is cancelled. The first
// refresh happens after one full interval; startup loading is the store's
// responsibility.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("refresh scheduler started", "interval", s.interval)

	// Backoff after a failed cycle: start at 30s, double each retry, never
	// exceeding the regular interval.
	minBackoff := 30 * time.Second
	if minBackoff > s.interval {
		minBackoff = s.interval
	}
	backoff := minBackoff

	wait := s.interval
	for {
		if !sleepWithContext(ctx, wait) {
			s.logger.Info("refresh scheduler stopping", "reason", ctx.Err())
			return nil
		}

		if _, err := s.refresher.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduled refresh failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, s.interval)
			continue
		}

		wait = s.interval
		backoff = minBackoff
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
