package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// HistoryService defines the methods that the history handler requires.
type HistoryService interface {
	Recent(ctx context.Context, trader string, limit int) ([]domain.HistoryEntry, error)
}

// HistoryHandler serves recent trade history.
type HistoryHandler struct {
	history HistoryService
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(history HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  logHandler(logger, "history"),
	}
}

// historyResponse wraps the history listing.
type historyResponse struct {
	History []domain.HistoryEntry `json:"history"`
}

// GetHistory returns recent trades for a trader, newest first. The service
// coerces non-positive limits to its default.
// GET /api/history?trader=0x...&limit=10
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	trader := r.URL.Query().Get("trader")
	limit := queryInt(r, "limit", 0)

	entries, err := h.history.Recent(r.Context(), trader, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get history failed",
			slog.String("trader", trader),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if entries == nil {
		entries = []domain.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, historyResponse{History: entries})
}
