// Package server assembles the HTTP API: routes, middleware, and the
// net/http server lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
	"github.com/keirwatson/perpdesk/internal/server/handler"
	"github.com/keirwatson/perpdesk/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the limiter.
	RateLimit  int
	RateWindow time.Duration

	// SubmitBudget is the worst-case time the trading engine spends polling
	// for a submitted order before giving up, typically TrackAttempts times
	// TrackInterval. The write timeout is sized from it so a budget-long
	// confirmation never cuts off the response mid-flight.
	SubmitBudget time.Duration
}

const (
	defaultWriteTimeout = 30 * time.Second

	// submitHeadroom covers the venue submission, the subgraph reads around
	// the tracking poll, and writing the response itself.
	submitHeadroom = 60 * time.Second
)

// writeTimeoutFor returns the write deadline for the whole server. Order
// submission is the slowest route, so everything else inherits its budget.
func writeTimeoutFor(submitBudget time.Duration) time.Duration {
	if t := submitBudget + submitHeadroom; submitBudget > 0 && t > defaultWriteTimeout {
		return t
	}
	return defaultWriteTimeout
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Trading   *handler.TradingHandler
	Positions *handler.PositionHandler
	Markets   *handler.MarketHandler
	Account   *handler.AccountHandler
	History   *handler.HistoryHandler
}

// Server is the headless HTTP API server for the trading service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (rate limit, auth, logging, CORS) applied.
// limiter may be nil to disable per-IP rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Trade lifecycle.
	mux.HandleFunc("POST /api/trading/orders", handlers.Trading.PlaceOrder)
	mux.HandleFunc("GET /api/trading/orders/{id}", handlers.Trading.TrackOrder)
	mux.HandleFunc("POST /api/trading/close", handlers.Trading.ClosePosition)
	mux.HandleFunc("POST /api/trading/collateral/add", handlers.Trading.AddCollateral)
	mux.HandleFunc("POST /api/trading/collateral/remove", handlers.Trading.RemoveCollateral)
	mux.HandleFunc("PUT /api/trading/stop-loss", handlers.Trading.UpdateStopLoss)
	mux.HandleFunc("PUT /api/trading/take-profit", handlers.Trading.UpdateTakeProfit)
	mux.HandleFunc("PUT /api/trading/slippage", handlers.Trading.UpdateSlippage)

	// Positions and history.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/history", handlers.History.GetHistory)

	// Market data.
	mux.HandleFunc("GET /api/markets/price", handlers.Markets.GetPrice)
	mux.HandleFunc("GET /api/markets/pairs", handlers.Markets.ListPairs)

	// Account.
	mux.HandleFunc("GET /api/account/balances", handlers.Account.GetBalances)
	mux.HandleFunc("POST /api/account/faucet", handlers.Account.RequestFaucet)

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeoutFor(cfg.SubmitBudget),
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
