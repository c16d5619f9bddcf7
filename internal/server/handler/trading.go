package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// TradingService defines the methods the trading handler requires from the
// service layer.
type TradingService interface {
	PlaceOrder(ctx context.Context, intent domain.PlaceOrderIntent) (domain.PlaceOrderResult, error)
	ClosePosition(ctx context.Context, intent domain.ClosePositionIntent) (domain.ClosePositionResult, error)
	AddCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error)
	RemoveCollateral(ctx context.Context, intent domain.CollateralIntent) (domain.CollateralResult, error)
	UpdateStopLoss(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error)
	UpdateTakeProfit(ctx context.Context, intent domain.ProtectionIntent) (domain.ProtectionResult, error)
	TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, domain.OrderOutcome, error)
	Slippage() float64
	SetSlippage(ctx context.Context, pct float64)
}

// TradingHandler serves the trade lifecycle endpoints.
type TradingHandler struct {
	trading TradingService
	logger  *slog.Logger
}

// NewTradingHandler creates a TradingHandler with the given service and logger.
func NewTradingHandler(trading TradingService, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{
		trading: trading,
		logger:  logHandler(logger, "trading"),
	}
}

// PlaceOrder opens a leveraged position from a JSON intent.
// POST /api/trading/orders
func (h *TradingHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var intent domain.PlaceOrderIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.trading.PlaceOrder(r.Context(), intent)
	if err != nil {
		h.logError(r, "place order failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ClosePosition closes all or part of an open position.
// POST /api/trading/close
func (h *TradingHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var intent domain.ClosePositionIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.trading.ClosePosition(r.Context(), intent)
	if err != nil {
		if errors.Is(err, domain.ErrCancelledByVenue) {
			// The submission happened; return the partial result with
			// the venue's reason alongside.
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":  err.Error(),
				"result": result,
			})
			return
		}
		h.logError(r, "close position failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AddCollateral tops up a position's collateral.
// POST /api/trading/collateral/add
func (h *TradingHandler) AddCollateral(w http.ResponseWriter, r *http.Request) {
	h.adjustCollateral(w, r, h.trading.AddCollateral)
}

// RemoveCollateral withdraws collateral from a position.
// POST /api/trading/collateral/remove
func (h *TradingHandler) RemoveCollateral(w http.ResponseWriter, r *http.Request) {
	h.adjustCollateral(w, r, h.trading.RemoveCollateral)
}

func (h *TradingHandler) adjustCollateral(
	w http.ResponseWriter,
	r *http.Request,
	submit func(context.Context, domain.CollateralIntent) (domain.CollateralResult, error),
) {
	var intent domain.CollateralIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := submit(r.Context(), intent)
	if err != nil {
		h.logError(r, "collateral adjustment failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// UpdateStopLoss sets a position's stop-loss price.
// PUT /api/trading/stop-loss
func (h *TradingHandler) UpdateStopLoss(w http.ResponseWriter, r *http.Request) {
	h.updateProtection(w, r, h.trading.UpdateStopLoss)
}

// UpdateTakeProfit sets a position's take-profit price.
// PUT /api/trading/take-profit
func (h *TradingHandler) UpdateTakeProfit(w http.ResponseWriter, r *http.Request) {
	h.updateProtection(w, r, h.trading.UpdateTakeProfit)
}

func (h *TradingHandler) updateProtection(
	w http.ResponseWriter,
	r *http.Request,
	submit func(context.Context, domain.ProtectionIntent) (domain.ProtectionResult, error),
) {
	var intent domain.ProtectionIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := submit(r.Context(), intent)
	if err != nil {
		h.logError(r, "protection update failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// trackOrderResponse wraps the order-tracking response.
type trackOrderResponse struct {
	Outcome domain.OrderOutcome `json:"outcome"`
	Order   domain.TrackedOrder `json:"order"`
}

// TrackOrder reports the current state of a submitted order.
// GET /api/trading/orders/{id}
func (h *TradingHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	tracked, outcome, err := h.trading.TrackOrder(r.Context(), id)
	if err != nil {
		h.logError(r, "track order failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trackOrderResponse{Outcome: outcome, Order: tracked})
}

// slippageRequest is the body for the slippage update endpoint.
type slippageRequest struct {
	Slippage float64 `json:"slippage"`
}

// UpdateSlippage sets the default slippage tolerance percentage.
// PUT /api/trading/slippage
func (h *TradingHandler) UpdateSlippage(w http.ResponseWriter, r *http.Request) {
	var req slippageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.trading.SetSlippage(r.Context(), req.Slippage)

	writeJSON(w, http.StatusOK, map[string]float64{"slippage": h.trading.Slippage()})
}

func (h *TradingHandler) logError(r *http.Request, msg string, err error) {
	if statusFromError(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, slog.String("error", err.Error()))
	}
}
