package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirwatson/perpdesk/internal/domain"
)

func TestParseFrameBatch(t *testing.T) {
	raw := []byte(`[
		{"from":"EUR","to":"USD","mid":1.1012,"isMarketOpen":true,"timestampSeconds":1700000000},
		{"from":"BTC","to":"USD","mid":61250.5,"isMarketOpen":true,"timestampSeconds":1700000000}
	]`)

	quotes := parseFrame(raw)

	require.Len(t, quotes, 2)
	assert.Equal(t, "EUR/USD", quotes[0].Pair)
	assert.InDelta(t, 1.1012, quotes[0].Price, 1e-9)
	assert.True(t, quotes[0].IsOpen)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), quotes[0].Timestamp)
	assert.Equal(t, "BTC/USD", quotes[1].Pair)
}

func TestParseFrameSingleObject(t *testing.T) {
	raw := []byte(`{"from":"XAU","to":"USD","mid":2031.25,"isMarketOpen":false,"timestampSeconds":1700000123}`)

	quotes := parseFrame(raw)

	require.Len(t, quotes, 1)
	assert.Equal(t, "XAU/USD", quotes[0].Pair)
	assert.False(t, quotes[0].IsOpen)
}

func TestParseFrameDropsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `pong`},
		{name: "missing pair", raw: `{"mid":1.5,"isMarketOpen":true}`},
		{name: "zero price", raw: `{"from":"EUR","to":"USD","mid":0,"isMarketOpen":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, parseFrame([]byte(tt.raw)))
		})
	}
}

type memoryPriceCache struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote
}

func newMemoryPriceCache() *memoryPriceCache {
	return &memoryPriceCache{quotes: make(map[string]domain.PriceQuote)}
}

func (m *memoryPriceCache) SetPrice(_ context.Context, pair string, price float64, isOpen bool, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[pair] = domain.PriceQuote{Pair: pair, Price: price, IsOpen: isOpen, Timestamp: ts}
	return nil
}

func (m *memoryPriceCache) GetPrice(_ context.Context, pair string) (domain.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[pair]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func (m *memoryPriceCache) GetPrices(ctx context.Context, pairs []string) (map[string]domain.PriceQuote, error) {
	out := make(map[string]domain.PriceQuote, len(pairs))
	for _, p := range pairs {
		if q, err := m.GetPrice(ctx, p); err == nil {
			out[p] = q
		}
	}
	return out, nil
}

func TestPriceFeedWritesStreamedQuotesToCache(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		frame := `[{"from":"EUR","to":"USD","mid":1.105,"isMarketOpen":true,"timestampSeconds":1700000000}]`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

		// Hold the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cache := newMemoryPriceCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pf := NewPriceFeed(wsURL, cache, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pf.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := cache.GetPrice(context.Background(), "EUR/USD")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	quote, err := cache.GetPrice(context.Background(), "EUR/USD")
	require.NoError(t, err)
	assert.InDelta(t, 1.105, quote.Price, 1e-9)
	assert.True(t, quote.IsOpen)

	pf.Close()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop after close")
	}
}
