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

func newTestEngine(gw Gateway, cfg Config) *Engine {
	if cfg.TrackAttempts == 0 {
		cfg.TrackAttempts = 3
	}
	if cfg.TrackInterval == 0 {
		cfg.TrackInterval = time.Millisecond
	}
	return NewEngine(gw, cfg, testLogger())
}

func TestPlaceOrderValidation(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, Config{})

	tests := []struct {
		name   string
		intent domain.PlaceOrderIntent
	}{
		{"missing pair", domain.PlaceOrderIntent{Collateral: 100, Leverage: 10}},
		{"zero collateral", domain.PlaceOrderIntent{From: "EUR", To: "USD", Leverage: 10}},
		{"negative collateral", domain.PlaceOrderIntent{From: "EUR", To: "USD", Collateral: -5, Leverage: 10}},
		{"zero leverage", domain.PlaceOrderIntent{From: "EUR", To: "USD", Collateral: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.PlaceOrder(context.Background(), tt.intent)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestPlaceOrderMarket(t *testing.T) {
	var gotParams OpenParams
	var gotPrice float64
	gw := &fakeGateway{
		getPrice: func(ctx context.Context, from, to string) (domain.PriceQuote, error) {
			assert.Equal(t, "EUR", from)
			assert.Equal(t, "USD", to)
			return domain.PriceQuote{Pair: "EUR/USD", Price: 1.10, IsOpen: true}, nil
		},
		submitOpen: func(ctx context.Context, p OpenParams, executionPrice float64) (domain.SubmittedOrder, error) {
			gotParams = p
			gotPrice = executionPrice
			return domain.SubmittedOrder{OrderID: "o-1", TxHash: "0xabc"}, nil
		},
	}
	e := newTestEngine(gw, Config{Slippage: 2})

	res, err := e.PlaceOrder(context.Background(), domain.PlaceOrderIntent{
		From: "EUR", To: "USD", Collateral: 100, Leverage: 10,
		Direction: domain.DirectionLong,
	})
	require.NoError(t, err)

	assert.Equal(t, "0xabc", res.TxHash)
	assert.Equal(t, "o-1", res.OrderID)
	assert.Equal(t, "EUR/USD", res.Pair)
	assert.InDelta(t, 1.10, res.Price, 1e-9)
	assert.InDelta(t, 1.10, gotPrice, 1e-9)
	assert.Equal(t, domain.OrderTypeMarket, gotParams.OrderType, "empty order type defaults to market")
	assert.InDelta(t, 2.0, gotParams.Slippage, 1e-9)

	require.NotNil(t, res.Summary)
	assert.Equal(t, 1.10, res.Summary.Entry)
	assert.Equal(t, 1000.0, res.Summary.Size)
	require.NotNil(t, res.Summary.Liquidation)
	assert.Equal(t, 0.99, *res.Summary.Liquidation)
	assert.Equal(t, domain.DirectionLong, res.Summary.Direction)
}

func TestPlaceOrderLimitUsesLimitPrice(t *testing.T) {
	limit := 1.05
	var gotPrice float64
	gw := &fakeGateway{
		getPrice: func(ctx context.Context, from, to string) (domain.PriceQuote, error) {
			return domain.PriceQuote{Price: 1.10}, nil
		},
		submitOpen: func(ctx context.Context, p OpenParams, executionPrice float64) (domain.SubmittedOrder, error) {
			gotPrice = executionPrice
			return domain.SubmittedOrder{OrderID: "o-2"}, nil
		},
	}
	e := newTestEngine(gw, Config{})

	_, err := e.PlaceOrder(context.Background(), domain.PlaceOrderIntent{
		From: "EUR", To: "USD", Collateral: 50, Leverage: 5,
		Direction: domain.DirectionShort,
		OrderType: domain.OrderTypeLimit, LimitPrice: &limit,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.05, gotPrice, 1e-9)
}

func TestPlaceOrderPriceFailure(t *testing.T) {
	gw := &fakeGateway{
		getPrice: func(ctx context.Context, from, to string) (domain.PriceQuote, error) {
			return domain.PriceQuote{}, errors.New("feed down")
		},
	}
	e := newTestEngine(gw, Config{})

	_, err := e.PlaceOrder(context.Background(), domain.PlaceOrderIntent{
		From: "EUR", To: "USD", Collateral: 100, Leverage: 10,
	})
	assert.ErrorIs(t, err, domain.ErrExternalCall)
}

func eurUsdPosition() domain.Position {
	return domain.Position{
		TradeID:      "7",
		MarketID:     "3",
		NestedPairID: "3",
		Index:        0,
		Pair:         domain.MarketPair{ID: "3", From: "EUR", To: "USD"},
		Direction:    domain.DirectionLong,
		Collateral:   100,
		Leverage:     10,
		OpenPrice:    1.10,
	}
}

func TestClosePositionFullLifecycle(t *testing.T) {
	var gotMarket uint16
	var gotSlot uint8
	var gotPct uint16
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
		submitClose: func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
			gotMarket, gotSlot, gotPct = marketID, slot, percentage
			return domain.SubmittedOrder{OrderID: "o-9", TxHash: "0xdef"}, nil
		},
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{ID: orderID, TradeID: "7"},
				Trade: domain.TrackedTradeRecord{
					TradeID: "7",
					Pair:    domain.MarketPair{ID: "3", From: "EUR", To: "USD"},
					IsOpen:  true, IsBuy: true,
					OpenPrice: 1.10, Collateral: 100, Leverage: 10,
				},
			}, nil
		},
		getPrice: func(ctx context.Context, from, to string) (domain.PriceQuote, error) {
			return domain.PriceQuote{Price: 1.12}, nil
		},
	}
	e := newTestEngine(gw, Config{})

	res, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{CandidateID: "7"})
	require.NoError(t, err)

	assert.Equal(t, uint16(3), gotMarket)
	assert.Equal(t, uint8(0), gotSlot)
	assert.Equal(t, uint16(100), gotPct, "absent percentage closes fully")

	assert.True(t, res.Tracked)
	assert.Equal(t, domain.OrderStateProcessed, res.OrderStatus)
	assert.Equal(t, "7", res.TradeID)

	require.NotNil(t, res.Summary)
	assert.InDelta(t, 18.18, res.Summary.ProfitLoss, 1e-9)
	assert.InDelta(t, 18.18, res.Summary.ProfitLossPercent, 1e-9)
	assert.Equal(t, 1.12, res.Summary.ExitPrice)
	assert.False(t, res.Summary.Closed)
}

func TestClosePositionPartialPercentage(t *testing.T) {
	var gotPct uint16
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
		submitClose: func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
			gotPct = percentage
			return domain.SubmittedOrder{OrderID: "o-3"}, nil
		},
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{TradeID: "7", ProfitPercent: 4},
				Trade: domain.TrackedTradeRecord{TradeID: "7", IsOpen: false, Collateral: 100, Leverage: 10, OpenPrice: 1.10, ClosePrice: 1.11, ProfitPercent: 4},
			}, nil
		},
	}
	e := newTestEngine(gw, Config{})

	res, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{
		CandidateID: "7", Percentage: intPtr(50),
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(50), gotPct)
	require.NotNil(t, res.Summary)
	assert.True(t, res.Summary.Closed)
	assert.InDelta(t, 4.0, res.Summary.ProfitLossPercent, 1e-9)
	assert.InDelta(t, 4.0, res.Summary.ProfitLoss, 1e-9, "4% of 100 collateral")
	assert.Nil(t, res.Summary.Liquidation)
}

func TestClosePositionRejectsNonPositivePercentage(t *testing.T) {
	submitted := false
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
		submitClose: func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
			submitted = true
			return domain.SubmittedOrder{OrderID: "o-7"}, nil
		},
	}
	e := newTestEngine(gw, Config{})

	for _, pct := range []int{0, -25} {
		_, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{
			CandidateID: "7", Percentage: intPtr(pct),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.False(t, submitted, "a zero-percent close must never reach the venue")
}

func TestClosePositionNotFound(t *testing.T) {
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
	}
	e := newTestEngine(gw, Config{})

	_, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{CandidateID: "99"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClosePositionCancelledByVenue(t *testing.T) {
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
		submitClose: func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
			return domain.SubmittedOrder{OrderID: "o-4", TxHash: "0x1"}, nil
		},
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{IsCancelled: true, CancelReason: "slippage"},
			}, nil
		},
	}
	e := newTestEngine(gw, Config{})

	res, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{CandidateID: "7"})
	assert.ErrorIs(t, err, domain.ErrCancelledByVenue)
	assert.ErrorContains(t, err, "slippage")
	assert.Equal(t, domain.OrderStateCancelled, res.OrderStatus)
	assert.True(t, res.Tracked)
}

func TestClosePositionTrackingTimeoutIsNotFailure(t *testing.T) {
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
		submitClose: func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
			return domain.SubmittedOrder{OrderID: "o-5", TxHash: "0x2"}, nil
		},
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{Order: domain.TrackedOrderRecord{IsPending: true}}, nil
		},
	}
	e := newTestEngine(gw, Config{TrackAttempts: 2})

	res, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{CandidateID: "7"})
	require.NoError(t, err, "a tracking failure never retracts a successful submission")
	assert.False(t, res.Tracked)
	assert.Equal(t, domain.OrderStatePending, res.OrderStatus)
	assert.Equal(t, "o-5", res.OrderID)
	assert.Nil(t, res.Summary)
}

func TestClosePositionSummaryPriceFailureStillSucceeds(t *testing.T) {
	gw := &fakeGateway{
		getOpenPositions: func(ctx context.Context, trader string) ([]domain.Position, error) {
			return []domain.Position{eurUsdPosition()}, nil
		},
		submitClose: func(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
			return domain.SubmittedOrder{OrderID: "o-6"}, nil
		},
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			return domain.TrackedOrder{
				Order: domain.TrackedOrderRecord{TradeID: "7"},
				Trade: domain.TrackedTradeRecord{
					TradeID: "7", IsOpen: true,
					Pair:      domain.MarketPair{From: "EUR", To: "USD"},
					OpenPrice: 1.10, Collateral: 100, Leverage: 10,
				},
			}, nil
		},
		getPrice: func(ctx context.Context, from, to string) (domain.PriceQuote, error) {
			return domain.PriceQuote{}, errors.New("feed down")
		},
	}
	e := newTestEngine(gw, Config{})

	res, err := e.ClosePosition(context.Background(), domain.ClosePositionIntent{CandidateID: "7"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateProcessed, res.OrderStatus)
	assert.Nil(t, res.Summary)
}

func TestAddCollateral(t *testing.T) {
	var gotAmount float64
	var gotTrader string
	gw := &fakeGateway{
		addCollateral: func(ctx context.Context, marketID uint16, slot uint8, amount float64, trader string) (string, error) {
			assert.Equal(t, uint16(3), marketID)
			assert.Equal(t, uint8(1), slot)
			gotAmount, gotTrader = amount, trader
			return "0xadd", nil
		},
	}
	e := newTestEngine(gw, Config{Trader: "0xdelegate"})

	res, err := e.AddCollateral(context.Background(), domain.CollateralIntent{
		CandidateID: "3", CandidateIndex: intPtr(1), Amount: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xadd", res.TxHash)
	assert.Equal(t, "3", res.MarketID)
	assert.Equal(t, 1, res.Index)
	assert.InDelta(t, 25.0, gotAmount, 1e-9)
	assert.Equal(t, "0xdelegate", gotTrader, "configured delegate applies when request has none")
}

func TestCollateralValidation(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, Config{})

	_, err := e.AddCollateral(context.Background(), domain.CollateralIntent{CandidateID: "3"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.RemoveCollateral(context.Background(), domain.CollateralIntent{CandidateID: "3", Amount: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.RemoveCollateral(context.Background(), domain.CollateralIntent{Amount: 10})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateStopLossTraderPrecedence(t *testing.T) {
	var gotTrader string
	gw := &fakeGateway{
		updateStopLoss: func(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error) {
			gotTrader = trader
			return true, nil
		},
	}
	e := newTestEngine(gw, Config{Owner: "0xowner", Trader: "0xconfigured"})

	// request-level trader wins
	res, err := e.UpdateStopLoss(context.Background(), domain.ProtectionIntent{
		CandidateID: "3", Price: 1.05, Trader: "0xrequested",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "0xrequested", gotTrader)

	// configured trader next
	_, err = e.UpdateStopLoss(context.Background(), domain.ProtectionIntent{CandidateID: "3", Price: 1.05})
	require.NoError(t, err)
	assert.Equal(t, "0xconfigured", gotTrader)

	// owner last
	e2 := newTestEngine(gw, Config{Owner: "0xowner"})
	_, err = e2.UpdateStopLoss(context.Background(), domain.ProtectionIntent{CandidateID: "3", Price: 1.05})
	require.NoError(t, err)
	assert.Equal(t, "0xowner", gotTrader)
}

func TestUpdateTakeProfitFailureIsReportedNotRaised(t *testing.T) {
	gw := &fakeGateway{
		updateTakeProfit: func(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error) {
			return false, errors.New("revert")
		},
	}
	e := newTestEngine(gw, Config{Owner: "0xowner"})

	res, err := e.UpdateTakeProfit(context.Background(), domain.ProtectionIntent{CandidateID: "3", Price: 1.25})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "3", res.MarketID)
}

func TestSlippage(t *testing.T) {
	e := newTestEngine(&fakeGateway{}, Config{Slippage: 1})
	assert.InDelta(t, 1.0, e.Slippage(), 1e-9)

	e.SetSlippage(2.5)
	assert.InDelta(t, 2.5, e.Slippage(), 1e-9)

	// out-of-range values are accepted, only logged
	e.SetSlippage(150)
	assert.InDelta(t, 150.0, e.Slippage(), 1e-9)
}

func TestTrackOrderOutcomeClassification(t *testing.T) {
	gw := &fakeGateway{
		trackOrder: func(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
			switch orderID {
			case "pending":
				return domain.TrackedOrder{Order: domain.TrackedOrderRecord{IsPending: true}}, nil
			case "cancelled":
				return domain.TrackedOrder{Order: domain.TrackedOrderRecord{IsCancelled: true}}, nil
			default:
				return domain.TrackedOrder{Order: domain.TrackedOrderRecord{TradeID: "1"}}, nil
			}
		},
	}
	e := newTestEngine(gw, Config{})

	_, outcome, err := e.TrackOrder(context.Background(), "pending")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatePending, outcome.State)

	_, outcome, err = e.TrackOrder(context.Background(), "cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCancelled, outcome.State)
	assert.Equal(t, "Unknown", outcome.CancelReason)

	_, outcome, err = e.TrackOrder(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateProcessed, outcome.State)
}
