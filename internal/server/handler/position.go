package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	OpenPositions(ctx context.Context, trader string) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns all open positions for a trader, defaulting to the
// configured owner wallet when no trader is given.
// GET /api/positions?trader=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	trader := r.URL.Query().Get("trader")

	positions, err := h.positions.OpenPositions(r.Context(), trader)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("trader", trader),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
