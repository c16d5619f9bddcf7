package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	ListPairs(ctx context.Context) ([]domain.PairDetail, error)
	GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error)
	GetPrices(ctx context.Context, pairs []string) (map[string]domain.PriceQuote, error)
}

// MarketHandler serves market-data HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "markets"),
	}
}

// listPairsResponse wraps the pair listing.
type listPairsResponse struct {
	Pairs []domain.PairDetail `json:"pairs"`
}

// ListPairs returns every tradeable pair with leverage and fee limits.
// GET /api/markets/pairs
func (h *MarketHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.markets.ListPairs(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list pairs failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if pairs == nil {
		pairs = []domain.PairDetail{}
	}

	writeJSON(w, http.StatusOK, listPairsResponse{Pairs: pairs})
}

// GetPrice returns the current quote for one pair, or a batch when the
// "pairs" parameter carries a comma-separated list.
// GET /api/markets/price?from=EUR&to=USD
// GET /api/markets/price?pairs=EUR/USD,BTC/USD
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if list := q.Get("pairs"); list != "" {
		pairs := strings.Split(list, ",")
		quotes, err := h.markets.GetPrices(r.Context(), pairs)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "get prices failed",
				slog.String("pairs", list),
				slog.String("error", err.Error()),
			)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prices": quotes})
		return
	}

	from := q.Get("from")
	to := q.Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to query parameters required (or pairs=)")
		return
	}

	quote, err := h.markets.GetPrice(r.Context(), from, to)
	if err != nil {
		h.logError(r, from, to, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

func (h *MarketHandler) logError(r *http.Request, from, to string, err error) {
	if statusFromError(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "get price failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
	}
}
