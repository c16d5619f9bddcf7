package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// defaultHistoryLimit is used when the caller asks for a non-positive number
// of entries.
const defaultHistoryLimit = 10

// HistorySource serves past trade records. Implemented by the subgraph
// client.
type HistorySource interface {
	GetRecentHistory(ctx context.Context, trader string, limit int) ([]domain.HistoryEntry, error)
}

// HistoryService serves recent trade history for a wallet.
type HistoryService struct {
	source HistorySource
	owner  string
	logger *slog.Logger
}

// NewHistoryService creates a HistoryService for the given owner wallet.
func NewHistoryService(source HistorySource, owner string, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		source: source,
		owner:  owner,
		logger: logger.With(slog.String("component", "history_service")),
	}
}

// Recent returns the most recent trades for the given trader, newest first.
// An empty trader means the configured owner; a non-positive limit falls
// back to the default with a warning.
func (s *HistoryService) Recent(ctx context.Context, trader string, limit int) ([]domain.HistoryEntry, error) {
	if trader == "" {
		trader = s.owner
	}
	if limit <= 0 {
		s.logger.WarnContext(ctx, "non-positive history limit, using default",
			slog.Int("requested", limit),
			slog.Int("default", defaultHistoryLimit),
		)
		limit = defaultHistoryLimit
	}

	entries, err := s.source.GetRecentHistory(ctx, trader, limit)
	if err != nil {
		return nil, fmt.Errorf("history_service: recent for %s: %w", trader, err)
	}
	return entries, nil
}
