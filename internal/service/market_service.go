package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// maxQuoteAge is how old a cached quote may be before the venue feed is
// consulted again.
const maxQuoteAge = 15 * time.Second

// PairCatalog lists the tradeable pairs. Implemented by the subgraph client.
type PairCatalog interface {
	GetPairs(ctx context.Context) ([]domain.PairDetail, error)
}

// PriceSource serves live quotes. Implemented by the venue price feed client.
type PriceSource interface {
	GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error)
	LatestPrices(ctx context.Context) ([]domain.PriceQuote, error)
}

// MarketService serves pair metadata and prices. Quotes come from the cache
// when the feed has kept it fresh, falling back to the venue's REST endpoint
// on a miss or stale entry.
type MarketService struct {
	catalog PairCatalog
	source  PriceSource
	cache   domain.PriceCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	catalog PairCatalog,
	source PriceSource,
	cache domain.PriceCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		catalog: catalog,
		source:  source,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// ListPairs returns every tradeable pair with its leverage and fee limits.
func (s *MarketService) ListPairs(ctx context.Context) ([]domain.PairDetail, error) {
	pairs, err := s.catalog.GetPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list pairs: %w", err)
	}
	return pairs, nil
}

// GetPrice returns the current quote for one pair, cache first.
func (s *MarketService) GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error) {
	if from == "" || to == "" {
		return domain.PriceQuote{}, fmt.Errorf("market_service: %w: both currencies are required", domain.ErrValidation)
	}
	symbol := strings.ToUpper(from) + "/" + strings.ToUpper(to)

	if quote, err := s.cache.GetPrice(ctx, symbol); err == nil {
		if time.Since(quote.Timestamp) <= maxQuoteAge {
			return quote, nil
		}
	}

	quote, err := s.source.GetPrice(ctx, from, to)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("market_service: get price %s: %w", symbol, err)
	}

	// Back-fill the cache; log but never fail on cache write errors.
	if cacheErr := s.cache.SetPrice(ctx, quote.Pair, quote.Price, quote.IsOpen, quote.Timestamp); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("pair", quote.Pair),
			slog.String("error", cacheErr.Error()),
		)
	}

	return quote, nil
}

// GetPrices returns quotes for the given pairs. Cached entries are used
// where present; any misses are filled with one venue fetch.
func (s *MarketService) GetPrices(ctx context.Context, pairs []string) (map[string]domain.PriceQuote, error) {
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, strings.ToUpper(strings.TrimSpace(p)))
	}

	cached, err := s.cache.GetPrices(ctx, symbols)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.String("error", err.Error()),
		)
		cached = map[string]domain.PriceQuote{}
	}

	missing := false
	for _, sym := range symbols {
		q, ok := cached[sym]
		if !ok || time.Since(q.Timestamp) > maxQuoteAge {
			missing = true
			break
		}
	}
	if !missing {
		return cached, nil
	}

	latest, err := s.source.LatestPrices(ctx)
	if err != nil {
		// Serve what the cache had rather than failing the whole read.
		if len(cached) > 0 {
			s.logger.WarnContext(ctx, "venue prices unavailable, serving cached quotes",
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
		return nil, fmt.Errorf("market_service: latest prices: %w", err)
	}

	byPair := make(map[string]domain.PriceQuote, len(latest))
	for _, q := range latest {
		byPair[strings.ToUpper(q.Pair)] = q
	}

	out := make(map[string]domain.PriceQuote, len(symbols))
	for _, sym := range symbols {
		if q, ok := byPair[sym]; ok {
			out[sym] = q
			if cacheErr := s.cache.SetPrice(ctx, q.Pair, q.Price, q.IsOpen, q.Timestamp); cacheErr != nil {
				s.logger.WarnContext(ctx, "cache set failed",
					slog.String("pair", q.Pair),
					slog.String("error", cacheErr.Error()),
				)
			}
		} else if q, ok := cached[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}
