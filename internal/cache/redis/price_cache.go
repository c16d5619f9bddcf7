package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each pair's
// quote is stored at key "price:{FROM/TO}" with fields "price", "open", and
// "ts" (Unix nanoseconds). The WebSocket feed writes, the market service
// reads; the trading engine never touches the cache and always quotes live.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(pair string) string {
	return "price:" + pair
}

// SetPrice stores the latest quote for a pair.
func (pc *PriceCache) SetPrice(ctx context.Context, pair string, price float64, isOpen bool, ts time.Time) error {
	fields := map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"open":  strconv.FormatBool(isOpen),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(pair), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", pair, err)
	}
	return nil
}

// GetPrice retrieves the cached quote for a pair. A pair the feed has never
// written is domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, pair string) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(pair)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get price %s: %w", pair, err)
	}
	quote, ok := parseQuote(pair, vals)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("redis: price %s: %w", pair, domain.ErrNotFound)
	}
	return quote, nil
}

// GetPrices retrieves cached quotes for multiple pairs using a pipeline.
// Pairs with no cached quote are omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, pairs []string) (map[string]domain.PriceQuote, error) {
	if len(pairs) == 0 {
		return map[string]domain.PriceQuote{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(pairs))
	for _, pair := range pairs {
		cmds[pair] = pipe.HGetAll(ctx, priceKey(pair))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]domain.PriceQuote, len(pairs))
	for pair, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if quote, ok := parseQuote(pair, vals); ok {
			result[pair] = quote
		}
	}
	return result, nil
}

func parseQuote(pair string, vals map[string]string) (domain.PriceQuote, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceQuote{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.PriceQuote{}, false
	}

	isOpen, _ := strconv.ParseBool(vals["open"])

	var ts time.Time
	if nanos, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, nanos).UTC()
	}

	return domain.PriceQuote{
		Pair:      pair,
		Price:     price,
		IsOpen:    isOpen,
		Timestamp: ts,
	}, true
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
