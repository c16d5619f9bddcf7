// Package service hosts the application services behind the HTTP handlers.
// Services orchestrate the trading engine, venue clients, cache, audit log,
// and notifications; handlers stay thin.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
	"github.com/keirwatson/perpdesk/internal/notify"
)

const (
	// submitLimit caps venue submissions per wallet per window.
	submitLimit  = 10
	submitWindow = time.Second

	// positionLockTTL bounds how long a mutating submission may hold the
	// per-position lock before it expires on its own.
	positionLockTTL = 30 * time.Second
)

// Engine is the trade lifecycle coordinator the service drives. Implemented
// by trading.Engine.
type Engine interface {
	PlaceOrder(ctx context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error)
	ClosePosition(ctx context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error)
	AddCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error)
	RemoveCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error)
	UpdateStopLoss(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error)
	UpdateTakeProfit(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error)
	TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error)
	OpenPositions(ctx context.Context, trader string) ([]domain.Position, error)
	Slippage() float64
	SetSlippage(pct float64)
	Owner() string
}

// TradeService wraps the trading engine with the hosting concerns a live
// venue needs: per-position locking, submission pacing, lifecycle events on
// the signal bus, the audit trail, and operator notifications.
type TradeService struct {
	engine   Engine
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	audit    domain.OrderLogStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. notifier may be nil when no
// notification channels are configured.
func NewTradeService(
	engine Engine,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.OrderLogStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		engine:   engine,
		locks:    locks,
		limiter:  limiter,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// PlaceOrder paces the submission, delegates to the engine, and records the
// placement on success.
func (s *TradeService) PlaceOrder(ctx context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error) {
	if err := s.allowSubmission(ctx); err != nil {
		return domain.PlaceOrderResult{}, err
	}

	symbol := intent.From + "/" + intent.To

	result, err := s.engine.PlaceOrder(ctx, intent)
	if err != nil {
		s.notifyError(ctx, "Order placement failed", fmt.Sprintf("%s: %v", symbol, err))
		return domain.PlaceOrderResult{}, err
	}

	s.publishEvent(ctx, notify.EventOrderPlaced, map[string]any{
		"order_id": result.OrderID,
		"tx_hash":  result.TxHash,
		"pair":     result.Pair,
		"price":    result.Price,
	})
	s.auditLog(ctx, "order_placed", map[string]any{
		"order_id":   result.OrderID,
		"tx_hash":    result.TxHash,
		"pair":       result.Pair,
		"price":      result.Price,
		"collateral": intent.Collateral,
		"leverage":   intent.Leverage,
		"direction":  string(intent.Direction),
		"order_type": string(intent.OrderType),
	})
	s.notify(ctx, notify.EventOrderPlaced, "Order placed",
		fmt.Sprintf("%s @ %.5f (order %s)", result.Pair, result.Price, result.OrderID))

	return result, nil
}

// ClosePosition serializes closes against the same position, delegates to
// the engine, and classifies the outcome for the event stream. A venue
// cancellation is recorded and notified before the error is returned.
func (s *TradeService) ClosePosition(ctx context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error) {
	if err := s.allowSubmission(ctx); err != nil {
		return domain.ClosePositionResult{}, err
	}

	unlock, err := s.lockPosition(ctx, intent.CandidateID)
	if err != nil {
		return domain.ClosePositionResult{}, err
	}
	defer unlock()

	result, err := s.engine.ClosePosition(ctx, intent)
	if err != nil {
		if errors.Is(err, domain.ErrCancelledByVenue) {
			s.publishEvent(ctx, notify.EventOrderCancelled, map[string]any{
				"order_id": result.OrderID,
				"trade_id": result.TradeID,
				"reason":   err.Error(),
			})
			s.auditLog(ctx, "order_cancelled", map[string]any{
				"order_id": result.OrderID,
				"trade_id": result.TradeID,
				"reason":   err.Error(),
			})
			s.notify(ctx, notify.EventOrderCancelled, "Close cancelled by venue",
				fmt.Sprintf("trade %s: %v", result.TradeID, err))
		} else {
			s.notifyError(ctx, "Close failed", fmt.Sprintf("position %s: %v", intent.CandidateID, err))
		}
		return result, err
	}

	event := notify.EventOrderPlaced
	if result.OrderStatus == domain.OrderStateProcessed {
		event = notify.EventOrderFilled
	}
	s.publishEvent(ctx, event, map[string]any{
		"order_id": result.OrderID,
		"trade_id": result.TradeID,
		"tx_hash":  result.TxHash,
		"pnl":      result.ProfitLoss,
		"status":   string(result.OrderStatus),
		"tracked":  result.Tracked,
	})
	s.auditLog(ctx, "position_closed", map[string]any{
		"order_id": result.OrderID,
		"trade_id": result.TradeID,
		"tx_hash":  result.TxHash,
		"pnl":      result.ProfitLoss,
		"status":   string(result.OrderStatus),
		"tracked":  result.Tracked,
	})
	if event == notify.EventOrderFilled {
		s.notify(ctx, notify.EventOrderFilled, "Position closed",
			fmt.Sprintf("trade %s closed, pnl %.2f", result.TradeID, result.ProfitLoss))
	}

	return result, nil
}

// AddCollateral tops up a position's collateral under the position lock.
func (s *TradeService) AddCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error) {
	return s.adjustCollateral(ctx, intent, "collateral_added", s.engine.AddCollateral)
}

// RemoveCollateral withdraws collateral from a position under the position
// lock.
func (s *TradeService) RemoveCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error) {
	return s.adjustCollateral(ctx, intent, "collateral_removed", s.engine.RemoveCollateral)
}

func (s *TradeService) adjustCollateral(
	ctx context.Context,
	intent domain.CollateralIntent,
	event string,
	submit func(context.Context, domain.CollateralIntent) (domain.CollateralResult, error),
) (domain.CollateralResult, error) {
	if err := s.allowSubmission(ctx); err != nil {
		return domain.CollateralResult{}, err
	}

	unlock, err := s.lockPosition(ctx, intent.CandidateID)
	if err != nil {
		return domain.CollateralResult{}, err
	}
	defer unlock()

	result, err := submit(ctx, intent)
	if err != nil {
		return domain.CollateralResult{}, err
	}

	s.auditLog(ctx, event, map[string]any{
		"tx_hash":   result.TxHash,
		"market_id": result.MarketID,
		"index":     result.Index,
		"amount":    result.Amount,
	})
	return result, nil
}

// UpdateStopLoss delegates to the engine and audits successful updates.
func (s *TradeService) UpdateStopLoss(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error) {
	return s.updateProtection(ctx, intent, "stop_loss_updated", s.engine.UpdateStopLoss)
}

// UpdateTakeProfit delegates to the engine and audits successful updates.
func (s *TradeService) UpdateTakeProfit(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error) {
	return s.updateProtection(ctx, intent, "take_profit_updated", s.engine.UpdateTakeProfit)
}

func (s *TradeService) updateProtection(
	ctx context.Context,
	intent domain.ProtectionIntent,
	event string,
	submit func(context.Context, domain.ProtectionIntent) (domain.ProtectionResult, error),
) (domain.ProtectionResult, error) {
	result, err := submit(ctx, intent)
	if err != nil {
		return domain.ProtectionResult{}, err
	}
	if result.OK {
		s.auditLog(ctx, event, map[string]any{
			"market_id": result.MarketID,
			"index":     result.Index,
			"price":     result.Price,
		})
	}
	return result, nil
}

// TrackOrder reports the current classification of a submitted order.
func (s *TradeService) TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error) {
	return s.engine.TrackOrder(ctx, orderID)
}

// OpenPositions lists the open positions for the given trader, or the
// configured owner when trader is empty.
func (s *TradeService) OpenPositions(ctx context.Context, trader string) ([]domain.Position, error) {
	return s.engine.OpenPositions(ctx, trader)
}

// Slippage returns the current default slippage percentage.
func (s *TradeService) Slippage() float64 {
	return s.engine.Slippage()
}

// SetSlippage updates the default slippage percentage and audits the change.
func (s *TradeService) SetSlippage(ctx context.Context, pct float64) {
	previous := s.engine.Slippage()
	s.engine.SetSlippage(pct)
	s.auditLog(ctx, "slippage_updated", map[string]any{
		"previous": previous,
		"current":  pct,
	})
}

// allowSubmission enforces the per-wallet submission pace.
func (s *TradeService) allowSubmission(ctx context.Context) error {
	allowed, err := s.limiter.Allow(ctx, "submit:"+s.engine.Owner(), submitLimit, submitWindow)
	if err != nil {
		return fmt.Errorf("trade_service: rate limiter: %w", err)
	}
	if !allowed {
		return fmt.Errorf("trade_service: submission pace exceeded: %w", domain.ErrRateLimited)
	}
	return nil
}

// lockPosition serializes mutating submissions against the same position
// slot. A held lock means another request is mid-flight on this position.
func (s *TradeService) lockPosition(ctx context.Context, candidateID string) (func(), error) {
	if candidateID == "" {
		// Nothing to key on; the engine rejects the intent.
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "position:"+candidateID, positionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("trade_service: position %s busy: %w", candidateID, err)
	}
	return unlock, nil
}

// publishEvent emits a lifecycle event on the "orders" channel and appends
// it to the durable stream. Failures are logged, never surfaced.
func (s *TradeService) publishEvent(ctx context.Context, event string, fields map[string]any) {
	fields["event"] = event
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "orders", payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, "orders:stream", payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog records an event in the order log. Failures are logged, never
// surfaced; the trade outcome stands regardless.
func (s *TradeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) notifyError(ctx context.Context, title, message string) {
	s.notify(ctx, notify.EventError, title, message)
}
