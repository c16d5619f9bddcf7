package trading

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// Config holds the per-instance engine settings. Owner is the signing
// wallet's address; Trader optionally names a delegated position owner the
// service acts for. Both are read-mostly and safe to share across requests.
type Config struct {
	Owner         string
	Trader        string
	Slippage      float64
	TrackAttempts int
	TrackInterval time.Duration
}

// Engine is the trade lifecycle coordinator. It validates intents, resolves
// loose position identifiers, encodes submission arguments into the venue's
// integer domains, submits through the Gateway, tracks orders to a terminal
// state, and computes the financial summary for each action.
//
// The engine holds no position state: the venue indexer is authoritative
// and is re-queried on every resolution. Every public method returns either
// a result or an error wrapping one of the domain sentinel kinds.
type Engine struct {
	gateway Gateway
	tracker *Tracker
	logger  *slog.Logger

	owner  string
	trader string

	// slippage is stored as float64 bits so SetSlippage can swap it
	// without a lock while requests read it concurrently.
	slippage atomic.Uint64
}

// NewEngine creates an Engine over the given gateway.
func NewEngine(gateway Gateway, cfg Config, logger *slog.Logger) *Engine {
	e := &Engine{
		gateway: gateway,
		tracker: NewTracker(gateway, cfg.TrackAttempts, cfg.TrackInterval, logger),
		logger:  logger.With(slog.String("component", "engine")),
		owner:   cfg.Owner,
		trader:  cfg.Trader,
	}
	e.slippage.Store(math.Float64bits(cfg.Slippage))
	return e
}

// Slippage returns the current slippage tolerance in percent.
func (e *Engine) Slippage() float64 {
	return math.Float64frombits(e.slippage.Load())
}

// SetSlippage updates the slippage tolerance. Values outside [0, 100] are
// accepted but logged, matching the venue's own lenient handling.
func (e *Engine) SetSlippage(pct float64) {
	if pct < 0 || pct > 100 {
		e.logger.Warn("slippage percentage outside [0, 100]",
			slog.Float64("slippage", pct),
		)
	}
	e.slippage.Store(math.Float64bits(pct))
}

// Owner returns the signing wallet's address.
func (e *Engine) Owner() string { return e.owner }

// DelegationEnabled reports whether a delegated trader address is
// configured at the service level.
func (e *Engine) DelegationEnabled() bool { return e.trader != "" }

// PlaceOrder validates the intent, fetches the current price, chooses the
// execution price, submits, and computes the at-open trade summary.
// Validation failures short-circuit before any venue call.
func (e *Engine) PlaceOrder(ctx context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error) {
	if intent.From == "" || intent.To == "" {
		return domain.PlaceOrderResult{}, fmt.Errorf("engine: %w: currency pair is required", domain.ErrValidation)
	}
	if intent.Collateral <= 0 {
		return domain.PlaceOrderResult{}, fmt.Errorf("engine: %w: collateral must be positive", domain.ErrValidation)
	}
	if intent.Leverage <= 0 {
		return domain.PlaceOrderResult{}, fmt.Errorf("engine: %w: leverage must be positive", domain.ErrValidation)
	}
	if intent.OrderType == "" {
		intent.OrderType = domain.OrderTypeMarket
	}

	quote, err := e.gateway.GetPrice(ctx, intent.From, intent.To)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("engine: price for %s/%s: %w: %w", intent.From, intent.To, domain.ErrExternalCall, err)
	}

	executionPrice := quote.Price
	if intent.OrderType == domain.OrderTypeLimit && intent.LimitPrice != nil && *intent.LimitPrice > 0 {
		executionPrice = *intent.LimitPrice
	}

	params := OpenParams{
		From:       intent.From,
		To:         intent.To,
		Collateral: intent.Collateral,
		Leverage:   intent.Leverage,
		AssetType:  intent.AssetType,
		Direction:  intent.Direction,
		OrderType:  intent.OrderType,
		TakeProfit: intent.TakeProfit,
		StopLoss:   intent.StopLoss,
		Trader:     e.delegate(intent.Trader),
		Slippage:   e.Slippage(),
	}
	if params.Trader != "" {
		e.logger.InfoContext(ctx, "using delegated trading",
			slog.String("trader", params.Trader),
		)
	}

	submitted, err := e.gateway.SubmitOpen(ctx, params, executionPrice)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("engine: submit open: %w: %w", domain.ErrExternalCall, err)
	}

	e.logger.InfoContext(ctx, "order placed",
		slog.String("pair", intent.From+"/"+intent.To),
		slog.String("direction", string(intent.Direction)),
		slog.Float64("collateral", intent.Collateral),
		slog.Int("leverage", intent.Leverage),
		slog.String("order_id", submitted.OrderID),
		slog.String("tx_hash", submitted.TxHash),
	)

	size := PositionSize(intent.Collateral, float64(intent.Leverage))
	liq := Round2(LiquidationPriceAtOpen(quote.Price, float64(intent.Leverage), intent.Direction))
	summary := &domain.TradeSummary{
		Entry:       Round2(quote.Price),
		Size:        Round2(size),
		Liquidation: &liq,
		Direction:   intent.Direction,
	}

	return domain.PlaceOrderResult{
		TxHash:  submitted.TxHash,
		OrderID: submitted.OrderID,
		Price:   quote.Price,
		Pair:    intent.From + "/" + intent.To,
		Summary: summary,
	}, nil
}

// ClosePosition resolves the target position from the live set, encodes the
// close arguments, submits, tracks the order to a terminal state, and
// computes the realized (or live-estimate) summary.
//
// A cancellation by the venue makes the whole action a failure even though
// the submission succeeded; a tracking failure does not.
func (e *Engine) ClosePosition(ctx context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error) {
	if intent.CandidateID == "" {
		return domain.ClosePositionResult{}, fmt.Errorf("engine: %w: trade id is required", domain.ErrValidation)
	}
	// An absent percentage means a full close; an explicit one must close
	// something.
	if intent.Percentage != nil && *intent.Percentage <= 0 {
		return domain.ClosePositionResult{}, fmt.Errorf("engine: %w: close percentage must be positive", domain.ErrValidation)
	}

	owner := e.resolveTrader(intent.Trader)
	live, err := e.gateway.GetOpenPositions(ctx, owner)
	if err != nil {
		return domain.ClosePositionResult{}, fmt.Errorf("engine: fetch open positions: %w: %w", domain.ErrExternalCall, err)
	}

	res, err := Resolve(intent.CandidateID, intent.CandidateIndex, live)
	if err != nil {
		return domain.ClosePositionResult{}, fmt.Errorf("engine: position %s not found or already closed: %w", intent.CandidateID, err)
	}

	marketID, clampedID := EncodeU16(&res.MarketID)
	slot, clampedSlot := EncodeU8(&res.SlotIndex)
	pct, clampedPct := EncodePercentage(intent.Percentage)
	if clampedID || clampedSlot || clampedPct {
		e.logger.WarnContext(ctx, "close arguments clamped to venue domain",
			slog.Int("market_id", int(marketID)),
			slog.Int("slot", int(slot)),
			slog.Int("percentage", int(pct)),
		)
	}

	submitted, err := e.gateway.SubmitClose(ctx, marketID, slot, pct)
	if err != nil {
		return domain.ClosePositionResult{}, fmt.Errorf("engine: submit close: %w: %w", domain.ErrExternalCall, err)
	}
	if submitted.OrderID == "" {
		return domain.ClosePositionResult{}, fmt.Errorf("engine: submit close: %w: venue returned no order id", domain.ErrExternalCall)
	}

	e.logger.InfoContext(ctx, "close submitted",
		slog.Int("market_id", int(marketID)),
		slog.Int("slot", int(slot)),
		slog.Int("percentage", int(pct)),
		slog.String("order_id", submitted.OrderID),
	)

	rec, outcome, trackErr := e.tracker.Track(ctx, submitted.OrderID)
	if trackErr != nil {
		// Submission stands; the caller gets the handle and can poll
		// the order endpoint later.
		e.logger.WarnContext(ctx, "close tracking unavailable",
			slog.String("order_id", submitted.OrderID),
			slog.String("error", trackErr.Error()),
		)
		return domain.ClosePositionResult{
			TxHash:      submitted.TxHash,
			OrderID:     submitted.OrderID,
			TradeID:     res.Position.TradeID,
			OrderStatus: domain.OrderStatePending,
			Tracked:     false,
		}, nil
	}

	if outcome.State == domain.OrderStateCancelled {
		return domain.ClosePositionResult{
				TxHash:      submitted.TxHash,
				OrderID:     submitted.OrderID,
				TradeID:     res.Position.TradeID,
				OrderStatus: domain.OrderStateCancelled,
				Tracked:     true,
			}, fmt.Errorf("engine: close order %s: %w: %s",
				submitted.OrderID, domain.ErrCancelledByVenue, outcome.CancelReason)
	}

	pnl := rec.Order.ProfitPercent
	if pnl == 0 && rec.Order.AmountSentToTrader != 0 {
		pnl = rec.Order.AmountSentToTrader
	}

	summary := e.closeSummary(ctx, rec)

	return domain.ClosePositionResult{
		TxHash:      submitted.TxHash,
		OrderID:     submitted.OrderID,
		TradeID:     rec.Order.TradeID,
		ProfitLoss:  pnl,
		OrderStatus: domain.OrderStateProcessed,
		Tracked:     true,
		Summary:     summary,
	}, nil
}

// AddCollateral validates and submits a collateral top-up for a position.
func (e *Engine) AddCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error) {
	marketID, slot, err := e.encodeTarget(ctx, intent.CandidateID, intent.CandidateIndex, intent.Amount)
	if err != nil {
		return domain.CollateralResult{}, err
	}

	txHash, err := e.gateway.SubmitAddCollateral(ctx, marketID, slot, intent.Amount, e.delegate(intent.Trader))
	if err != nil {
		return domain.CollateralResult{}, fmt.Errorf("engine: add collateral: %w: %w", domain.ErrExternalCall, err)
	}

	e.logger.InfoContext(ctx, "collateral added",
		slog.Int("market_id", int(marketID)),
		slog.Float64("amount", intent.Amount),
		slog.String("tx_hash", txHash),
	)

	return domain.CollateralResult{
		TxHash:   txHash,
		MarketID: strconv.Itoa(int(marketID)),
		Index:    int(slot),
		Amount:   intent.Amount,
	}, nil
}

// RemoveCollateral validates and submits a collateral withdrawal.
func (e *Engine) RemoveCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error) {
	marketID, slot, err := e.encodeTarget(ctx, intent.CandidateID, intent.CandidateIndex, intent.Amount)
	if err != nil {
		return domain.CollateralResult{}, err
	}

	txHash, err := e.gateway.SubmitRemoveCollateral(ctx, marketID, slot, intent.Amount)
	if err != nil {
		return domain.CollateralResult{}, fmt.Errorf("engine: remove collateral: %w: %w", domain.ErrExternalCall, err)
	}

	e.logger.InfoContext(ctx, "collateral removed",
		slog.Int("market_id", int(marketID)),
		slog.Float64("amount", intent.Amount),
		slog.String("tx_hash", txHash),
	)

	return domain.CollateralResult{
		TxHash:   txHash,
		MarketID: strconv.Itoa(int(marketID)),
		Index:    int(slot),
		Amount:   intent.Amount,
	}, nil
}

// UpdateStopLoss submits a stop-loss mutation. The venue returns a bare
// boolean; failures are reported, never raised past the result.
func (e *Engine) UpdateStopLoss(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error) {
	return e.updateProtection(ctx, intent, "stop_loss", e.gateway.SubmitUpdateStopLoss)
}

// UpdateTakeProfit submits a take-profit mutation.
func (e *Engine) UpdateTakeProfit(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error) {
	return e.updateProtection(ctx, intent, "take_profit", e.gateway.SubmitUpdateTakeProfit)
}

// TrackOrder exposes one-shot order tracking for the order-status endpoint.
func (e *Engine) TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error) {
	rec, err := e.gateway.TrackOrder(ctx, orderID)
	if err != nil {
		return domain.TrackedOrder{}, domain.OrderOutcome{}, fmt.Errorf("engine: track order %s: %w: %w", orderID, domain.ErrExternalCall, err)
	}

	outcome := domain.OrderOutcome{State: domain.OrderStatePending}
	if !rec.Order.IsPending {
		if rec.Order.IsCancelled {
			reason := rec.Order.CancelReason
			if reason == "" {
				reason = "Unknown"
			}
			outcome = domain.OrderOutcome{State: domain.OrderStateCancelled, CancelReason: reason}
		} else {
			outcome = domain.OrderOutcome{State: domain.OrderStateProcessed}
		}
	}
	return rec, outcome, nil
}

// OpenPositions returns the live position set for the resolved trader.
func (e *Engine) OpenPositions(ctx context.Context, trader string) ([]domain.Position, error) {
	positions, err := e.gateway.GetOpenPositions(ctx, e.resolveTrader(trader))
	if err != nil {
		return nil, fmt.Errorf("engine: open positions: %w: %w", domain.ErrExternalCall, err)
	}
	return positions, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

type protectionSubmit func(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error)

func (e *Engine) updateProtection(ctx context.Context, intent domain.ProtectionIntent, kind string, submit protectionSubmit) (domain.ProtectionResult, error) {
	if intent.CandidateID == "" {
		return domain.ProtectionResult{}, fmt.Errorf("engine: %w: trade id is required", domain.ErrValidation)
	}

	marketID, slot := e.encodeCandidate(ctx, intent.CandidateID, intent.CandidateIndex)
	trader := e.resolveTrader(intent.Trader)

	ok, err := submit(ctx, marketID, slot, intent.Price, trader)
	if err != nil {
		e.logger.ErrorContext(ctx, kind+" update failed",
			slog.Int("market_id", int(marketID)),
			slog.String("error", err.Error()),
		)
		ok = false
	}

	return domain.ProtectionResult{
		OK:       ok,
		MarketID: strconv.Itoa(int(marketID)),
		Index:    int(slot),
		Price:    intent.Price,
	}, nil
}

// encodeTarget validates a collateral mutation and encodes its addressing.
func (e *Engine) encodeTarget(ctx context.Context, candidateID string, candidateIndex *int, amount float64) (uint16, uint8, error) {
	if candidateID == "" {
		return 0, 0, fmt.Errorf("engine: %w: trade id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return 0, 0, fmt.Errorf("engine: %w: collateral amount must be positive", domain.ErrValidation)
	}
	marketID, slot := e.encodeCandidate(ctx, candidateID, candidateIndex)
	return marketID, slot, nil
}

// encodeCandidate turns a loose string market id and optional slot hint
// into the venue's bounded integer domains.
func (e *Engine) encodeCandidate(ctx context.Context, candidateID string, candidateIndex *int) (uint16, uint8) {
	var idPtr *int
	if id, err := strconv.Atoi(candidateID); err == nil {
		idPtr = &id
	}
	marketID, clampedID := EncodeU16(idPtr)
	slot, clampedSlot := EncodeU8(candidateIndex)
	if clampedID || clampedSlot {
		e.logger.WarnContext(ctx, "target arguments clamped to venue domain",
			slog.String("candidate_id", candidateID),
			slog.Int("market_id", int(marketID)),
			slog.Int("slot", int(slot)),
		)
	}
	return marketID, slot
}

// closeSummary computes the post-close report. When the tracked trade is
// already closed the venue-reported percentage is authoritative; otherwise
// the live price drives an open-position estimate.
func (e *Engine) closeSummary(ctx context.Context, rec domain.TrackedOrder) *domain.TradeSummary {
	trade := rec.Trade
	order := rec.Order

	if !trade.IsOpen {
		pct := order.ProfitPercent
		if pct == 0 {
			pct = trade.ProfitPercent
		}
		pnl := PnLClosed(pct, trade.Collateral)
		return &domain.TradeSummary{
			TradeID:            trade.TradeID,
			Entry:              Round2(trade.OpenPrice),
			ExitPrice:          Round2(trade.ClosePrice),
			CurrentPrice:       Round2(trade.ClosePrice),
			Size:               Round2(PositionSize(trade.Collateral, trade.Leverage)),
			Liquidation:        nil,
			Direction:          domain.DirectionFromBool(trade.IsBuy),
			ProfitLoss:         Round2(pnl),
			ProfitLossPercent:  Round2(pct),
			AmountSentToTrader: order.AmountSentToTrader,
			Fees: domain.FeeBreakdown{
				Funding:     order.FundingFee,
				Rollover:    order.RolloverFee,
				Liquidation: order.LiquidationFee,
			},
			Closed: true,
		}
	}

	if trade.Pair.From == "" || trade.Pair.To == "" {
		e.logger.WarnContext(ctx, "tracked trade missing pair, skipping summary",
			slog.String("trade_id", trade.TradeID),
		)
		return nil
	}

	quote, err := e.gateway.GetPrice(ctx, trade.Pair.From, trade.Pair.To)
	if err != nil {
		e.logger.WarnContext(ctx, "price unavailable for close summary",
			slog.String("pair", trade.Pair.Symbol()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	direction := domain.DirectionFromBool(trade.IsBuy)
	size := PositionSize(trade.Collateral, trade.Leverage)
	liq := Round2(LiquidationPriceEstimate(trade.OpenPrice, trade.Leverage, direction))
	pnl := PnLOpen(trade.OpenPrice, quote.Price, size, direction)

	return &domain.TradeSummary{
		TradeID:           trade.TradeID,
		Entry:             Round2(trade.OpenPrice),
		ExitPrice:         Round2(quote.Price),
		CurrentPrice:      Round2(quote.Price),
		Size:              Round2(size),
		Liquidation:       &liq,
		Direction:         direction,
		ProfitLoss:        Round2(pnl),
		ProfitLossPercent: Round2(PnLPercentage(pnl, trade.Collateral)),
		Closed:            false,
	}
}

// delegate returns the delegated trader for submissions that only carry a
// trader when delegation is in play: the request's address wins, then the
// service-level configured address, else empty (self-trading).
func (e *Engine) delegate(requested string) string {
	if requested != "" {
		return requested
	}
	return e.trader
}

// resolveTrader applies the full precedence chain ending at the signing
// wallet's own address, for operations that always need a concrete owner.
func (e *Engine) resolveTrader(requested string) string {
	if requested != "" {
		return requested
	}
	if e.trader != "" {
		return e.trader
	}
	return e.owner
}
