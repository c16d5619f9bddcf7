package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keirwatson/perpdesk/internal/crypto"
	"github.com/keirwatson/perpdesk/internal/feed"
	"github.com/keirwatson/perpdesk/internal/platform/ostium"
	"github.com/keirwatson/perpdesk/internal/server"
	"github.com/keirwatson/perpdesk/internal/server/handler"
	"github.com/keirwatson/perpdesk/internal/service"
	"github.com/keirwatson/perpdesk/internal/trading"
)

// runtime bundles the venue clients, trading engine, and API server built on
// top of the wired infrastructure dependencies.
type runtime struct {
	signer    *crypto.Signer
	chain     *ostium.ChainClient
	subgraph  *ostium.SubgraphClient
	feedREST  *ostium.PriceFeedClient
	engine    *trading.Engine
	httpSrv   *server.Server
	priceFeed *feed.PriceFeed
}

// buildRuntime constructs the venue clients, the trading engine, the
// application services, and the HTTP server. Without a configured wallet the
// stack comes up read-only: views work, submissions fail at the engine.
func (a *App) buildRuntime(ctx context.Context, deps *Dependencies) (*runtime, error) {
	rt := &runtime{}

	// Signing wallet, when configured.
	if a.cfg.Wallet.PrivateKey != "" || a.cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    a.cfg.Wallet.PrivateKey,
			EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      a.cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("build runtime: load wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, a.cfg.Ostium.ChainID)
		if err != nil {
			return nil, fmt.Errorf("build runtime: create signer: %w", err)
		}
		rt.signer = signer
	} else {
		a.logger.InfoContext(ctx, "no wallet configured, running read-only")
	}

	// Venue clients.
	rt.subgraph = ostium.NewSubgraphClient(a.cfg.Ostium.SubgraphURL, a.cfg.Ostium.SubgraphAPIKey)
	rt.feedREST = ostium.NewPriceFeedClient(a.cfg.Ostium.PriceFeedURL)

	chain, err := ostium.NewChainClient(ctx, ostium.ChainConfig{
		RPCURL:          a.cfg.Ostium.RPCURL,
		TradingContract: a.cfg.Ostium.TradingContract,
		TokenContract:   a.cfg.Ostium.TokenContract,
		FaucetContract:  a.cfg.Ostium.FaucetContract,
	}, rt.signer, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build runtime: chain client: %w", err)
	}
	rt.chain = chain
	a.closers = append(a.closers, chain.Close)

	owner := a.cfg.Trading.Trader
	if rt.signer != nil {
		owner = rt.signer.Address().Hex()
	}

	gateway := ostium.NewGateway(rt.subgraph, rt.feedREST, rt.chain, owner, a.logger)
	rt.engine = trading.NewEngine(gateway, trading.Config{
		Owner:         owner,
		Trader:        a.cfg.Trading.Trader,
		Slippage:      a.cfg.Trading.Slippage,
		TrackAttempts: a.cfg.Trading.TrackAttempts,
		TrackInterval: a.cfg.Trading.TrackInterval.Duration,
	}, a.logger)

	// Live price stream into the cache, when a WS endpoint is configured.
	if a.cfg.Ostium.PriceWSURL != "" {
		rt.priceFeed = feed.NewPriceFeed(a.cfg.Ostium.PriceWSURL, deps.PriceCache, deps.SignalBus, a.logger)
	}

	// Services and HTTP server.
	if a.cfg.Server.Enabled {
		tradeSvc := service.NewTradeService(
			rt.engine, deps.LockManager, deps.RateLimiter,
			deps.SignalBus, deps.OrderLog, deps.Notifier, a.logger,
		)
		marketSvc := service.NewMarketService(rt.subgraph, rt.feedREST, deps.PriceCache, a.logger)
		accountSvc := service.NewAccountService(rt.chain, deps.OrderLog, owner, a.logger)
		historySvc := service.NewHistoryService(rt.subgraph, owner, a.logger)

		handlers := server.Handlers{
			Health: handler.NewHealthHandler(handler.HealthInfo{
				Network:           a.cfg.Ostium.Network,
				WalletConfigured:  rt.signer != nil,
				DelegationEnabled: rt.engine.DelegationEnabled(),
			}, a.logger),
			Trading:   handler.NewTradingHandler(tradeSvc, a.logger),
			Positions: handler.NewPositionHandler(tradeSvc, a.logger),
			Markets:   handler.NewMarketHandler(marketSvc, a.logger),
			Account:   handler.NewAccountHandler(accountSvc, a.logger),
			History:   handler.NewHistoryHandler(historySvc, a.logger),
		}

		rt.httpSrv = server.NewServer(server.Config{
			Port:         a.cfg.Server.Port,
			CORSOrigins:  a.cfg.Server.CORSOrigins,
			APIKey:       a.cfg.Server.APIKey,
			RateLimit:    a.cfg.Server.RateLimit,
			RateWindow:   a.cfg.Server.RateWindow.Duration,
			SubmitBudget: time.Duration(a.cfg.Trading.TrackAttempts) * a.cfg.Trading.TrackInterval.Duration,
		}, handlers, deps.RateLimiter, a.logger)
	}

	return rt, nil
}

// ServerMode runs the HTTP API plus the live price feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	rt, err := a.buildRuntime(ctx, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	if rt.httpSrv == nil {
		return fmt.Errorf("server mode: server.enabled is false")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startPriceFeed(ctx, g, rt)
	a.startHTTPServer(ctx, g, rt)
	return g.Wait()
}

// MonitorMode runs the price feed only: it keeps the price cache warm and
// publishes price events on the signal bus. No API, no database.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if a.cfg.Ostium.PriceWSURL == "" {
		return fmt.Errorf("monitor mode: ostium.price_ws_url is required")
	}
	priceFeed := feed.NewPriceFeed(a.cfg.Ostium.PriceWSURL, deps.PriceCache, deps.SignalBus, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer priceFeed.Close()
		return priceFeed.Run(ctx)
	})

	// Log the stream so operators can watch the tape.
	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, "prices")
		if err != nil {
			return fmt.Errorf("monitor mode: subscribe prices: %w", err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				a.logger.DebugContext(ctx, "price event", slog.String("payload", string(msg)))
			}
		}
	})

	return g.Wait()
}

// FullMode runs everything: the price feed, the HTTP API, and the order-log
// archiver when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	rt, err := a.buildRuntime(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startPriceFeed(ctx, g, rt)
	if rt.httpSrv != nil {
		a.startHTTPServer(ctx, g, rt)
	}
	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	}
	return g.Wait()
}

// startPriceFeed adds the WS price feed goroutine when one is configured.
func (a *App) startPriceFeed(ctx context.Context, g *errgroup.Group, rt *runtime) {
	if rt.priceFeed == nil {
		a.logger.InfoContext(ctx, "ostium.price_ws_url not set, price cache served from REST fallback only")
		return
	}
	g.Go(func() error {
		defer rt.priceFeed.Close()
		return rt.priceFeed.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server goroutine plus a shutdown watcher.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, rt *runtime) {
	g.Go(func() error {
		return rt.httpSrv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rt.httpSrv.Shutdown(shutCtx)
	})
}

// startArchiver adds the periodic order-log archival goroutine. Each tick
// moves entries older than the retention window to blob storage.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.S3.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retentionDays := a.cfg.S3.ArchiveRetentionDays

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
				n, err := deps.Archiver.ArchiveOrderLog(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "order log archival failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if n > 0 {
					a.logger.InfoContext(ctx, "order log archived",
						slog.Int64("entries", n),
						slog.Time("cutoff", cutoff),
					)
				}
			}
		}
	})
}
