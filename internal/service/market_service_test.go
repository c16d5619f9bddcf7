package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirwatson/perpdesk/internal/domain"
)

type fakeCatalog struct {
	pairs []domain.PairDetail
	err   error
}

func (f *fakeCatalog) GetPairs(context.Context) ([]domain.PairDetail, error) {
	return f.pairs, f.err
}

type fakePriceSource struct {
	quotes map[string]domain.PriceQuote
	err    error
	calls  int
}

func (f *fakePriceSource) GetPrice(_ context.Context, from, to string) (domain.PriceQuote, error) {
	f.calls++
	if f.err != nil {
		return domain.PriceQuote{}, f.err
	}
	q, ok := f.quotes[from+"/"+to]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func (f *fakePriceSource) LatestPrices(context.Context) ([]domain.PriceQuote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.PriceQuote, 0, len(f.quotes))
	for _, q := range f.quotes {
		out = append(out, q)
	}
	return out, nil
}

type stubPriceCache struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote
	sets   int
}

func newStubPriceCache() *stubPriceCache {
	return &stubPriceCache{quotes: make(map[string]domain.PriceQuote)}
}

func (c *stubPriceCache) SetPrice(_ context.Context, pair string, price float64, isOpen bool, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.quotes[pair] = domain.PriceQuote{Pair: pair, Price: price, IsOpen: isOpen, Timestamp: ts}
	return nil
}

func (c *stubPriceCache) GetPrice(_ context.Context, pair string) (domain.PriceQuote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[pair]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func (c *stubPriceCache) GetPrices(ctx context.Context, pairs []string) (map[string]domain.PriceQuote, error) {
	out := make(map[string]domain.PriceQuote, len(pairs))
	for _, p := range pairs {
		if q, err := c.GetPrice(ctx, p); err == nil {
			out[p] = q
		}
	}
	return out, nil
}

func TestGetPriceServedFromFreshCache(t *testing.T) {
	cache := newStubPriceCache()
	require.NoError(t, cache.SetPrice(context.Background(), "EUR/USD", 1.1012, true, time.Now()))
	source := &fakePriceSource{}
	svc := NewMarketService(&fakeCatalog{}, source, cache, testLogger())

	quote, err := svc.GetPrice(context.Background(), "eur", "usd")

	require.NoError(t, err)
	assert.InDelta(t, 1.1012, quote.Price, 1e-9)
	assert.Zero(t, source.calls)
}

func TestGetPriceStaleCacheFallsThroughToVenue(t *testing.T) {
	cache := newStubPriceCache()
	require.NoError(t, cache.SetPrice(context.Background(), "EUR/USD", 1.09, true, time.Now().Add(-time.Minute)))
	source := &fakePriceSource{quotes: map[string]domain.PriceQuote{
		"eur/usd": {Pair: "EUR/USD", Price: 1.1050, IsOpen: true, Timestamp: time.Now()},
	}}
	svc := NewMarketService(&fakeCatalog{}, source, cache, testLogger())

	quote, err := svc.GetPrice(context.Background(), "eur", "usd")

	require.NoError(t, err)
	assert.InDelta(t, 1.1050, quote.Price, 1e-9)
	assert.Equal(t, 1, source.calls)

	// Venue quote was backfilled into the cache.
	cached, err := cache.GetPrice(context.Background(), "EUR/USD")
	require.NoError(t, err)
	assert.InDelta(t, 1.1050, cached.Price, 1e-9)
}

func TestGetPriceValidation(t *testing.T) {
	svc := NewMarketService(&fakeCatalog{}, &fakePriceSource{}, newStubPriceCache(), testLogger())

	_, err := svc.GetPrice(context.Background(), "", "USD")

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetPricesServesCachedOnVenueFailure(t *testing.T) {
	cache := newStubPriceCache()
	stale := time.Now().Add(-time.Minute)
	require.NoError(t, cache.SetPrice(context.Background(), "EUR/USD", 1.10, true, stale))
	source := &fakePriceSource{err: errors.New("venue down")}
	svc := NewMarketService(&fakeCatalog{}, source, cache, testLogger())

	quotes, err := svc.GetPrices(context.Background(), []string{"EUR/USD"})

	require.NoError(t, err)
	require.Contains(t, quotes, "EUR/USD")
	assert.InDelta(t, 1.10, quotes["EUR/USD"].Price, 1e-9)
}

func TestGetPricesBackfillsMisses(t *testing.T) {
	cache := newStubPriceCache()
	source := &fakePriceSource{quotes: map[string]domain.PriceQuote{
		"btc/usd": {Pair: "BTC/USD", Price: 61250.5, IsOpen: true, Timestamp: time.Now()},
	}}
	svc := NewMarketService(&fakeCatalog{}, source, cache, testLogger())

	quotes, err := svc.GetPrices(context.Background(), []string{"btc/usd"})

	require.NoError(t, err)
	require.Contains(t, quotes, "BTC/USD")
	assert.Equal(t, 1, cache.sets)
}

func TestListPairs(t *testing.T) {
	catalog := &fakeCatalog{pairs: []domain.PairDetail{
		{Pair: domain.MarketPair{ID: "0", From: "EUR", To: "USD"}, MaxLeverage: 100},
	}}
	svc := NewMarketService(catalog, &fakePriceSource{}, newStubPriceCache(), testLogger())

	pairs, err := svc.ListPairs(context.Background())

	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "EUR/USD", pairs[0].Pair.Symbol())
}

func TestHistoryDefaultsNonPositiveLimit(t *testing.T) {
	var gotTrader string
	var gotLimit int
	source := historySourceFunc(func(_ context.Context, trader string, limit int) ([]domain.HistoryEntry, error) {
		gotTrader = trader
		gotLimit = limit
		return []domain.HistoryEntry{{TradeID: "7"}}, nil
	})
	svc := NewHistoryService(source, "0xowner", testLogger())

	entries, err := svc.Recent(context.Background(), "", -3)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xowner", gotTrader)
	assert.Equal(t, defaultHistoryLimit, gotLimit)
}

type historySourceFunc func(ctx context.Context, trader string, limit int) ([]domain.HistoryEntry, error)

func (f historySourceFunc) GetRecentHistory(ctx context.Context, trader string, limit int) ([]domain.HistoryEntry, error) {
	return f(ctx, trader, limit)
}
