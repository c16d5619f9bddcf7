package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirwatson/perpdesk/internal/domain"
)

type fakeTradingService struct {
	placeOrderFn func(ctx context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error)
	closeFn      func(ctx context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error)
	collateralFn func(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error)
	protectionFn func(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error)
	trackFn      func(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error)
	slippage     float64
}

func (f *fakeTradingService) PlaceOrder(ctx context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error) {
	return f.placeOrderFn(ctx, intent)
}

func (f *fakeTradingService) ClosePosition(ctx context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error) {
	return f.closeFn(ctx, intent)
}

func (f *fakeTradingService) AddCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error) {
	return f.collateralFn(ctx, intent)
}

func (f *fakeTradingService) RemoveCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error) {
	return f.collateralFn(ctx, intent)
}

func (f *fakeTradingService) UpdateStopLoss(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error) {
	return f.protectionFn(ctx, intent)
}

func (f *fakeTradingService) UpdateTakeProfit(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error) {
	return f.protectionFn(ctx, intent)
}

func (f *fakeTradingService) TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error) {
	return f.trackFn(ctx, orderID)
}

func (f *fakeTradingService) Slippage() float64 { return f.slippage }

func (f *fakeTradingService) SetSlippage(_ context.Context, pct float64) { f.slippage = pct }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlaceOrderCreated(t *testing.T) {
	svc := &fakeTradingService{
		placeOrderFn: func(_ context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error) {
			assert.Equal(t, "EUR", intent.From)
			assert.Equal(t, 10, intent.Leverage)
			return domain.PlaceOrderResult{OrderID: "42", TxHash: "0xabc", Pair: "EUR/USD", Price: 1.10}, nil
		},
	}
	h := NewTradingHandler(svc, testLogger())

	body := `{"from":"EUR","to":"USD","collateral":100,"leverage":10,"direction":"LONG"}`
	req := httptest.NewRequest(http.MethodPost, "/api/trading/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.PlaceOrder(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result domain.PlaceOrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "42", result.OrderID)
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: fmt.Errorf("bad: %w", domain.ErrValidation), status: http.StatusBadRequest},
		{name: "rate limited", err: fmt.Errorf("pace: %w", domain.ErrRateLimited), status: http.StatusTooManyRequests},
		{name: "venue down", err: fmt.Errorf("rpc: %w", domain.ErrExternalCall), status: http.StatusBadGateway},
		{name: "no wallet", err: fmt.Errorf("trading: %w", domain.ErrUnauthorized), status: http.StatusUnauthorized},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTradingService{
				placeOrderFn: func(context.Context, domain.PlaceOrderIntent) (domain.PlaceOrderResult, error) {
					return domain.PlaceOrderResult{}, tt.err
				},
			}
			h := NewTradingHandler(svc, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/trading/orders", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()

			h.PlaceOrder(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestPlaceOrderBadBody(t *testing.T) {
	h := NewTradingHandler(&fakeTradingService{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trading/orders", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	h.PlaceOrder(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClosePositionOK(t *testing.T) {
	svc := &fakeTradingService{
		closeFn: func(_ context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error) {
			assert.Equal(t, "7", intent.CandidateID)
			return domain.ClosePositionResult{
				OrderID:     "9",
				TradeID:     "7",
				ProfitLoss:  18.18,
				OrderStatus: domain.OrderStateProcessed,
				Tracked:     true,
			}, nil
		},
	}
	h := NewTradingHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trading/close", strings.NewReader(`{"candidate_id":"7"}`))
	rec := httptest.NewRecorder()

	h.ClosePosition(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.ClosePositionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 18.18, result.ProfitLoss, 1e-9)
	assert.True(t, result.Tracked)
}

func TestClosePositionVenueCancellationCarriesResult(t *testing.T) {
	svc := &fakeTradingService{
		closeFn: func(context.Context, domain.ClosePositionIntent) (domain.ClosePositionResult, error) {
			return domain.ClosePositionResult{OrderID: "9", OrderStatus: domain.OrderStateCancelled},
				fmt.Errorf("close cancelled: slippage: %w", domain.ErrCancelledByVenue)
		},
	}
	h := NewTradingHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trading/close", strings.NewReader(`{"candidate_id":"7"}`))
	rec := httptest.NewRecorder()

	h.ClosePosition(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error  string                     `json:"error"`
		Result domain.ClosePositionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "slippage")
	assert.Equal(t, "9", body.Result.OrderID)
}

func TestClosePositionNotFound(t *testing.T) {
	svc := &fakeTradingService{
		closeFn: func(context.Context, domain.ClosePositionIntent) (domain.ClosePositionResult, error) {
			return domain.ClosePositionResult{}, fmt.Errorf("position 99 not found or already closed: %w", domain.ErrNotFound)
		},
	}
	h := NewTradingHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trading/close", strings.NewReader(`{"candidate_id":"99"}`))
	rec := httptest.NewRecorder()

	h.ClosePosition(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "already closed")
}

func TestTrackOrder(t *testing.T) {
	svc := &fakeTradingService{
		trackFn: func(_ context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error) {
			assert.Equal(t, "42", orderID)
			return domain.TrackedOrder{Order: domain.TrackedOrderRecord{ID: "42"}},
				domain.OrderOutcome{State: domain.OrderStateProcessed}, nil
		},
	}
	h := NewTradingHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/trading/orders/42", nil)
	req.SetPathValue("id", "42")
	rec := httptest.NewRecorder()

	h.TrackOrder(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body trackOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.OrderStateProcessed, body.Outcome.State)
}

func TestUpdateSlippage(t *testing.T) {
	svc := &fakeTradingService{slippage: 1.0}
	h := NewTradingHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/trading/slippage", strings.NewReader(`{"slippage":2.5}`))
	rec := httptest.NewRecorder()

	h.UpdateSlippage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 2.5, body["slippage"], 1e-9)
}

func TestUpdateStopLossReportsNotApplied(t *testing.T) {
	svc := &fakeTradingService{
		protectionFn: func(context.Context, domain.ProtectionIntent) (domain.ProtectionResult, error) {
			return domain.ProtectionResult{OK: false, MarketID: "3", Index: 0, Price: 1.05}, nil
		},
	}
	h := NewTradingHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/trading/stop-loss", strings.NewReader(`{"candidate_id":"3","price":1.05}`))
	rec := httptest.NewRecorder()

	h.UpdateStopLoss(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.ProtectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK)
}
