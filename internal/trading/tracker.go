package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

const (
	defaultTrackAttempts = 10
	defaultTrackInterval = 3 * time.Second
)

// Tracker polls the venue indexer for a submitted order until it reaches a
// terminal state. An order starts Pending the moment it is submitted; the
// indexer's isPending flag going false is decisive, with isCancelled
// distinguishing Processed from Cancelled.
//
// The polling budget is bounded. Exhausting it — or never getting a usable
// record because of indexing lag — yields domain.ErrTrackingTimeout, which
// callers must report as "submitted, tracking unavailable" rather than
// failure: submission success is never retracted by a tracking failure.
type Tracker struct {
	gateway  Gateway
	attempts int
	interval time.Duration
	logger   *slog.Logger
}

// NewTracker creates a Tracker polling at the given budget. Non-positive
// attempts or interval fall back to the defaults (10 × 3s).
func NewTracker(gateway Gateway, attempts int, interval time.Duration, logger *slog.Logger) *Tracker {
	if attempts <= 0 {
		attempts = defaultTrackAttempts
	}
	if interval <= 0 {
		interval = defaultTrackInterval
	}
	return &Tracker{
		gateway:  gateway,
		attempts: attempts,
		interval: interval,
		logger:   logger.With(slog.String("component", "tracker")),
	}
}

// Track polls until the order is terminal or the budget runs out. On
// Cancelled the returned outcome carries the venue's reason verbatim.
func (t *Tracker) Track(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error) {
	if orderID == "" {
		return domain.TrackedOrder{}, domain.OrderOutcome{}, fmt.Errorf("tracker: %w: empty order id", domain.ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.TrackedOrder{}, domain.OrderOutcome{State: domain.OrderStatePending}, fmt.Errorf("tracker: %w: %w", domain.ErrTrackingTimeout, ctx.Err())
			case <-time.After(t.interval):
			}
		}

		rec, err := t.gateway.TrackOrder(ctx, orderID)
		if err != nil {
			// Transient failures and indexing lag are expected shortly
			// after submission; keep polling until the budget runs out.
			lastErr = err
			t.logger.DebugContext(ctx, "track attempt failed",
				slog.String("order_id", orderID),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		if rec.Order.IsPending {
			continue
		}

		if rec.Order.IsCancelled {
			reason := rec.Order.CancelReason
			if reason == "" {
				reason = "Unknown"
			}
			return rec, domain.OrderOutcome{
				State:        domain.OrderStateCancelled,
				CancelReason: reason,
			}, nil
		}

		return rec, domain.OrderOutcome{State: domain.OrderStateProcessed}, nil
	}

	err := fmt.Errorf("tracker: order %s: %w", orderID, domain.ErrTrackingTimeout)
	if lastErr != nil {
		err = fmt.Errorf("tracker: order %s: %w: last error: %w", orderID, domain.ErrTrackingTimeout, lastErr)
	}
	return domain.TrackedOrder{}, domain.OrderOutcome{State: domain.OrderStatePending}, err
}
