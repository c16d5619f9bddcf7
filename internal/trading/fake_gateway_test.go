package trading

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/keirwatson/perpdesk/internal/domain"
)

var errFakeUnset = errors.New("fake gateway: call not configured")

// fakeGateway implements Gateway with per-method hooks so each test wires
// only the calls it expects.
type fakeGateway struct {
	getPrice         func(ctx context.Context, from, to string) (domain.PriceQuote, error)
	getOpenPositions func(ctx context.Context, trader string) ([]domain.Position, error)
	submitOpen       func(ctx context.Context, p OpenParams, executionPrice float64) (domain.SubmittedOrder, error)
	submitClose      func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error)
	addCollateral    func(ctx context.Context, marketID uint16, slot uint8, amount float64, trader string) (string, error)
	removeCollateral func(ctx context.Context, marketID uint16, slot uint8, amount float64) (string, error)
	updateStopLoss   func(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error)
	updateTakeProfit func(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error)
	trackOrder       func(ctx context.Context, orderID string) (domain.TrackedOrder, error)
}

func (f *fakeGateway) GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error) {
	if f.getPrice == nil {
		return domain.PriceQuote{}, errFakeUnset
	}
	return f.getPrice(ctx, from, to)
}

func (f *fakeGateway) GetOpenPositions(ctx context.Context, trader string) ([]domain.Position, error) {
	if f.getOpenPositions == nil {
		return nil, errFakeUnset
	}
	return f.getOpenPositions(ctx, trader)
}

func (f *fakeGateway) SubmitOpen(ctx context.Context, p OpenParams, executionPrice float64) (domain.SubmittedOrder, error) {
	if f.submitOpen == nil {
		return domain.SubmittedOrder{}, errFakeUnset
	}
	return f.submitOpen(ctx, p, executionPrice)
}

func (f *fakeGateway) SubmitClose(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
	if f.submitClose == nil {
		return domain.SubmittedOrder{}, errFakeUnset
	}
	return f.submitClose(ctx, marketID, slot, percentage)
}

func (f *fakeGateway) SubmitAddCollateral(ctx context.Context, marketID uint16, slot uint8, amount float64, trader string) (string, error) {
	if f.addCollateral == nil {
		return "", errFakeUnset
	}
	return f.addCollateral(ctx, marketID, slot, amount, trader)
}

func (f *fakeGateway) SubmitRemoveCollateral(ctx context.Context, marketID uint16, slot uint8, amount float64) (string, error) {
	if f.removeCollateral == nil {
		return "", errFakeUnset
	}
	return f.removeCollateral(ctx, marketID, slot, amount)
}

func (f *fakeGateway) SubmitUpdateStopLoss(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error) {
	if f.updateStopLoss == nil {
		return false, errFakeUnset
	}
	return f.updateStopLoss(ctx, marketID, slot, price, trader)
}

func (f *fakeGateway) SubmitUpdateTakeProfit(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error) {
	if f.updateTakeProfit == nil {
		return false, errFakeUnset
	}
	return f.updateTakeProfit(ctx, marketID, slot, price, trader)
}

func (f *fakeGateway) TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
	if f.trackOrder == nil {
		return domain.TrackedOrder{}, errFakeUnset
	}
	return f.trackOrder(ctx, orderID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
