package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest pair prices.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, price float64, isOpen bool, ts time.Time) error
	GetPrice(ctx context.Context, pair string) (PriceQuote, error)
	GetPrices(ctx context.Context, pairs []string) (map[string]PriceQuote, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. It is used to serialize
// mutating submissions against the same position slot.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for trade lifecycle events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
