// Package feed streams live pair prices from the venue's publish WebSocket
// into the price cache, so read paths and PnL summaries see fresh quotes
// without hitting the REST endpoint on every request.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keirwatson/perpdesk/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// wsPrice is one price entry as published on the venue WebSocket. It matches
// the REST latest-prices payload shape.
type wsPrice struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Mid          float64 `json:"mid"`
	IsMarketOpen bool    `json:"isMarketOpen"`
	Timestamp    int64   `json:"timestampSeconds"`
}

// priceEvent is the JSON shape published to the "prices" bus channel for
// downstream subscribers.
type priceEvent struct {
	Event     string  `json:"event"`
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	IsOpen    bool    `json:"is_open"`
	Timestamp string  `json:"timestamp"`
}

// PriceFeed maintains a WebSocket connection to the venue price stream and
// writes every received quote into the price cache. Quotes are also
// republished on the signal bus "prices" channel when a bus is configured.
// The feed reconnects with exponential backoff on disconnect.
type PriceFeed struct {
	wsURL  string
	cache  domain.PriceCache
	bus    domain.SignalBus
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewPriceFeed creates a feed for the given WebSocket URL. bus may be nil to
// disable event republishing.
func NewPriceFeed(wsURL string, cache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "price_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called.
// Disconnects are retried with exponential backoff; the backoff resets after
// every successful connection.
func (f *PriceFeed) Run(ctx context.Context) error {
	delay := reconnectDelay

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}

		f.logger.WarnContext(ctx, "price stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed. Safe to call more than once.
func (f *PriceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// runConnection dials the stream and reads frames until the connection drops
// or the feed shuts down. A clean shutdown returns nil.
func (f *PriceFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.logger.InfoContext(ctx, "price stream connected")

	// Close the connection when ctx or the feed is done so ReadMessage
	// unblocks, and keep the peer alive with periodic pings.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.keepAlive(connCtx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			default:
				return fmt.Errorf("feed: read: %w", err)
			}
		}

		quotes := parseFrame(message)
		if len(quotes) == 0 {
			continue
		}
		f.apply(ctx, quotes)
	}
}

// keepAlive pings the peer until the connection context ends, then closes
// the connection.
func (f *PriceFeed) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-f.done:
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// apply writes quotes to the cache and republishes them on the bus. Failures
// are logged and skipped; one bad quote never stalls the stream.
func (f *PriceFeed) apply(ctx context.Context, quotes []domain.PriceQuote) {
	for _, q := range quotes {
		if err := f.cache.SetPrice(ctx, q.Pair, q.Price, q.IsOpen, q.Timestamp); err != nil {
			f.logger.WarnContext(ctx, "cache price update failed",
				slog.String("pair", q.Pair),
				slog.String("error", err.Error()),
			)
			continue
		}

		if f.bus == nil {
			continue
		}
		payload, err := json.Marshal(priceEvent{
			Event:     "price_update",
			Pair:      q.Pair,
			Price:     q.Price,
			IsOpen:    q.IsOpen,
			Timestamp: q.Timestamp.Format(time.RFC3339Nano),
		})
		if err != nil {
			continue
		}
		if err := f.bus.Publish(ctx, "prices", payload); err != nil {
			f.logger.DebugContext(ctx, "price event publish failed",
				slog.String("pair", q.Pair),
				slog.String("error", err.Error()),
			)
		}
	}
}

// parseFrame decodes a stream frame into quotes. The venue publishes either
// a single price object or a batch array; anything else is dropped.
func parseFrame(raw []byte) []domain.PriceQuote {
	var batch []wsPrice
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single wsPrice
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		batch = []wsPrice{single}
	}

	quotes := make([]domain.PriceQuote, 0, len(batch))
	for _, p := range batch {
		if p.From == "" || p.To == "" || p.Mid <= 0 {
			continue
		}
		quotes = append(quotes, domain.PriceQuote{
			Pair:      p.From + "/" + p.To,
			Price:     p.Mid,
			IsOpen:    p.IsMarketOpen,
			Timestamp: time.Unix(p.Timestamp, 0).UTC(),
		})
	}
	return quotes
}
