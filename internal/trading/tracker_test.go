package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirwatson/perpdesk/internal/domain"
)

func TestTrackerPendingThenProcessed(t *testing.T) {
	calls := 0
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			calls++
			if calls < 3 {
				return domain.TrackedOrder{Order: domain.TrackedOrderRecord{ID: orderID, IsPending: true}}, nil
			}
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{ID: orderID, TradeID: "42", ProfitPercent: 5},
			}, nil
		},
	}

	tracker := NewTracker(gw, 5, time.Millisecond, testLogger())
	rec, outcome, err := tracker.Track(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateProcessed, outcome.State)
	assert.Equal(t, "42", rec.Order.TradeID)
	assert.Equal(t, 3, calls)
}

func TestTrackerCancelledCarriesReason(t *testing.T) {
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{ID: orderID, IsCancelled: true, CancelReason: "slippage"},
			}, nil
		},
	}

	tracker := NewTracker(gw, 3, time.Millisecond, testLogger())
	_, outcome, err := tracker.Track(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCancelled, outcome.State)
	assert.Equal(t, "slippage", outcome.CancelReason)
}

func TestTrackerCancelledWithoutReason(t *testing.T) {
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{ID: orderID, IsCancelled: true},
			}, nil
		},
	}

	tracker := NewTracker(gw, 3, time.Millisecond, testLogger())
	_, outcome, err := tracker.Track(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", outcome.CancelReason)
}

func TestTrackerBudgetExhausted(t *testing.T) {
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{Order: domain.TrackedOrderRecord{IsPending: true}}, nil
		},
	}

	tracker := NewTracker(gw, 3, time.Millisecond, testLogger())
	_, outcome, err := tracker.Track(context.Background(), "order-1")
	assert.ErrorIs(t, err, domain.ErrTrackingTimeout)
	assert.Equal(t, domain.OrderStatePending, outcome.State)
}

func TestTrackerTransientErrorsDoNotAbort(t *testing.T) {
	calls := 0
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			calls++
			if calls < 2 {
				return domain.TrackedOrder{}, errors.New("indexer lag")
			}
			return domain.TrackedOrder{Order: domain.TrackedOrderRecord{TradeID: "7"}}, nil
		},
	}

	tracker := NewTracker(gw, 4, time.Millisecond, testLogger())
	rec, outcome, err := tracker.Track(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateProcessed, outcome.State)
	assert.Equal(t, "7", rec.Order.TradeID)
}

func TestTrackerAllAttemptsFailing(t *testing.T) {
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{}, errors.New("boom")
		},
	}

	tracker := NewTracker(gw, 2, time.Millisecond, testLogger())
	_, _, err := tracker.Track(context.Background(), "order-1")
	assert.ErrorIs(t, err, domain.ErrTrackingTimeout)
	assert.ErrorContains(t, err, "boom")
}

func TestTrackerEmptyOrderID(t *testing.T) {
	tracker := NewTracker(&fakeGateway{}, 2, time.Millisecond, testLogger())
	_, _, err := tracker.Track(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTrackerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			cancel()
			return domain.TrackedOrder{Order: domain.TrackedOrderRecord{IsPending: true}}, nil
		},
	}

	tracker := NewTracker(gw, 10, time.Hour, testLogger())
	_, _, err := tracker.Track(ctx, "order-1")
	assert.ErrorIs(t, err, domain.ErrTrackingTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}
