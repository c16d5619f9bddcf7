package ostium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// PriceFeedClient is the REST client for the venue's price endpoint, which
// publishes the latest oracle price and market-open flag for every pair.
// No credentials are required.
type PriceFeedClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPriceFeedClient creates a price feed client for the given API root.
func NewPriceFeedClient(baseURL string) *PriceFeedClient {
	return &PriceFeedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// apiPrice is one entry of the latest-prices payload.
type apiPrice struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Mid          float64 `json:"mid"`
	IsMarketOpen bool    `json:"isMarketOpen"`
	Timestamp    int64   `json:"timestampSeconds"`
}

func (p apiPrice) toQuote() domain.PriceQuote {
	return domain.PriceQuote{
		Pair:      p.From + "/" + p.To,
		Price:     p.Mid,
		IsOpen:    p.IsMarketOpen,
		Timestamp: time.Unix(p.Timestamp, 0).UTC(),
	}
}

// LatestPrices returns the current quote for every published pair.
func (c *PriceFeedClient) LatestPrices(ctx context.Context) ([]domain.PriceQuote, error) {
	body, err := c.doGet(ctx, "/PricePublish/latest-prices")
	if err != nil {
		return nil, fmt.Errorf("ostium/pricefeed: latest prices: %w", err)
	}

	var prices []apiPrice
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, fmt.Errorf("ostium/pricefeed: decode prices: %w", err)
	}

	quotes := make([]domain.PriceQuote, 0, len(prices))
	for _, p := range prices {
		quotes = append(quotes, p.toQuote())
	}
	return quotes, nil
}

// GetPrice returns the current quote for one pair. An unlisted pair is
// domain.ErrNotFound.
func (c *PriceFeedClient) GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error) {
	if from == "" || to == "" {
		return domain.PriceQuote{}, fmt.Errorf("ostium/pricefeed: %w: both currencies are required", domain.ErrValidation)
	}

	quotes, err := c.LatestPrices(ctx)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	symbol := strings.ToUpper(from) + "/" + strings.ToUpper(to)
	for _, q := range quotes {
		if strings.EqualFold(q.Pair, symbol) {
			return q, nil
		}
	}
	return domain.PriceQuote{}, fmt.Errorf("ostium/pricefeed: pair %s: %w", symbol, domain.ErrNotFound)
}

// doGet sends an unauthenticated GET request to the price endpoint.
func (c *PriceFeedClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
