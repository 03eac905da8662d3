package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/campusrent/campusrent/internal/metrics"
	"github.com/campusrent/campusrent/internal/model"
	"github.com/campusrent/campusrent/internal/notify"
	"github.com/campusrent/campusrent/internal/store"
)

// DefaultSweepInterval is how often the sweeper runs when not configured.
const DefaultSweepInterval = 5 * time.Minute

const sweepTimeout = time.Minute

// Sweeper starts accepted rentals whose start date has arrived and completes
// active rentals whose end date has passed. Each run also drops logged-out
// tokens that have since expired.
type Sweeper struct {
	Engine   *Engine
	Interval time.Duration
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce := func() {
		runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		n, err := s.SweepOnce(runCtx)
		if err != nil {
			s.Engine.logger().Error("sweeping lending requests", "error", err)
			return
		}
		if n > 0 {
			s.Engine.logger().Info("swept lending requests", "count", n)
		}
		purged, err := s.PurgeRevocations(runCtx)
		if err != nil {
			s.Engine.logger().Error("purging token revocations", "error", err)
			return
		}
		if purged > 0 {
			s.Engine.logger().Info("purged token revocations", "count", purged)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// SweepOnce runs a single sweep and returns how many requests moved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	e := s.Engine
	swept, err := store.SweepLendingRequests(ctx, e.DB, e.now())
	for _, sr := range swept {
		metrics.BookingTransitions.WithLabelValues(string(sr.Status), "sweeper").Inc()
		s.notifySwept(sr)
	}
	if err != nil {
		return len(swept), fmt.Errorf("sweeping: %w", err)
	}
	return len(swept), nil
}

// PurgeRevocations drops revocations of tokens that have expired.
func (s *Sweeper) PurgeRevocations(ctx context.Context) (int64, error) {
	return store.PurgeExpiredRevocations(ctx, s.Engine.DB, s.Engine.now())
}

func (s *Sweeper) notifySwept(sr store.MovedRequest) {
	r := &model.LendingRequest{ID: sr.ID, ItemID: sr.ItemID, Status: sr.Status}

	switch sr.Status {
	case model.StatusActive:
		for _, uid := range []int64{sr.BorrowerID, sr.LenderID} {
			s.Engine.notify(r, uid, notify.KindRequestActive, "Rental started",
				"Your rental period has started")
		}
	case model.StatusCompleted:
		for _, uid := range []int64{sr.BorrowerID, sr.LenderID} {
			s.Engine.notify(r, uid, notify.KindRequestCompleted, "Rental completed",
				"Your rental is complete. Leave a review!")
		}
	}
}
