package ostium

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/keirwatson/perpdesk/internal/domain"
	"github.com/keirwatson/perpdesk/internal/trading"
)

// Order type codes on the venue contract.
const (
	orderTypeMarket uint8 = 0
	orderTypeLimit  uint8 = 1
	orderTypeStop   uint8 = 2
)

// Gateway implements trading.Gateway over the venue's chain contract,
// subgraph, and price endpoint. Market data methods only touch the
// subgraph and price feed and work with a nil chain client; submissions
// require the chain client and its signer.
type Gateway struct {
	subgraph *SubgraphClient
	feed     *PriceFeedClient
	chain    *ChainClient
	owner    common.Address
	logger   *slog.Logger

	mu        sync.RWMutex
	pairIndex map[string]uint16 // "FROM/TO" -> contract pair index
}

// NewGateway composes the venue clients. owner is the signing wallet's
// address; it may be empty when no signer is configured.
func NewGateway(subgraph *SubgraphClient, feed *PriceFeedClient, chain *ChainClient, owner string, logger *slog.Logger) *Gateway {
	return &Gateway{
		subgraph:  subgraph,
		feed:      feed,
		chain:     chain,
		owner:     common.HexToAddress(owner),
		logger:    logger.With(slog.String("component", "gateway")),
		pairIndex: make(map[string]uint16),
	}
}

// GetPrice returns the current quote for a pair from the price endpoint.
func (g *Gateway) GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error) {
	return g.feed.GetPrice(ctx, from, to)
}

// GetOpenPositions returns the trader's live positions from the subgraph.
func (g *Gateway) GetOpenPositions(ctx context.Context, trader string) ([]domain.Position, error) {
	return g.subgraph.GetOpenTrades(ctx, trader)
}

// SubmitOpen opens a position on the venue contract at the given execution
// price.
func (g *Gateway) SubmitOpen(ctx context.Context, p trading.OpenParams, executionPrice float64) (domain.SubmittedOrder, error) {
	if g.chain == nil {
		return domain.SubmittedOrder{}, errNoChain()
	}

	pairIndex, err := g.lookupPairIndex(ctx, p.From, p.To)
	if err != nil {
		return domain.SubmittedOrder{}, err
	}

	trader := g.owner
	if p.Trader != "" {
		trader = common.HexToAddress(p.Trader)
	}

	txHash, orderID, err := g.chain.OpenTrade(ctx, TradeParams{
		Trader:     trader,
		PairIndex:  pairIndex,
		Collateral: p.Collateral,
		OpenPrice:  executionPrice,
		Buy:        p.Direction == domain.DirectionLong,
		Leverage:   p.Leverage,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
	}, contractOrderType(p.OrderType), p.Slippage)
	if err != nil {
		return domain.SubmittedOrder{}, err
	}
	return domain.SubmittedOrder{OrderID: orderID, TxHash: txHash}, nil
}

// SubmitClose closes part or all of a position on the venue contract.
func (g *Gateway) SubmitClose(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error) {
	if g.chain == nil {
		return domain.SubmittedOrder{}, errNoChain()
	}
	txHash, orderID, err := g.chain.CloseTradeMarket(ctx, marketID, slot, percentage)
	if err != nil {
		return domain.SubmittedOrder{}, err
	}
	return domain.SubmittedOrder{OrderID: orderID, TxHash: txHash}, nil
}

// SubmitAddCollateral tops up a position's collateral.
func (g *Gateway) SubmitAddCollateral(ctx context.Context, marketID uint16, slot uint8, amount float64, trader string) (string, error) {
	if g.chain == nil {
		return "", errNoChain()
	}
	return g.chain.TopUpCollateral(ctx, g.traderOrOwner(trader), marketID, slot, amount)
}

// SubmitRemoveCollateral withdraws collateral from a position.
func (g *Gateway) SubmitRemoveCollateral(ctx context.Context, marketID uint16, slot uint8, amount float64) (string, error) {
	if g.chain == nil {
		return "", errNoChain()
	}
	return g.chain.RemoveCollateral(ctx, marketID, slot, amount)
}

// SubmitUpdateStopLoss sets a position's stop-loss price.
func (g *Gateway) SubmitUpdateStopLoss(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error) {
	if g.chain == nil {
		return false, errNoChain()
	}
	return g.chain.UpdateStopLoss(ctx, g.traderOrOwner(trader), marketID, slot, price)
}

// SubmitUpdateTakeProfit sets a position's take-profit price.
func (g *Gateway) SubmitUpdateTakeProfit(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error) {
	if g.chain == nil {
		return false, errNoChain()
	}
	return g.chain.UpdateTakeProfit(ctx, g.traderOrOwner(trader), marketID, slot, price)
}

// TrackOrder returns the indexer's current record for an order.
func (g *Gateway) TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
	return g.subgraph.GetOrder(ctx, orderID)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// lookupPairIndex resolves a symbol pair to the contract's pair index,
// caching the listing after the first subgraph query. A cache miss
// re-fetches once in case the pair was listed after startup.
func (g *Gateway) lookupPairIndex(ctx context.Context, from, to string) (uint16, error) {
	symbol := strings.ToUpper(from) + "/" + strings.ToUpper(to)

	g.mu.RLock()
	idx, ok := g.pairIndex[symbol]
	g.mu.RUnlock()
	if ok {
		return idx, nil
	}

	pairs, err := g.subgraph.GetPairs(ctx)
	if err != nil {
		return 0, fmt.Errorf("ostium: listing pairs: %w", err)
	}

	g.mu.Lock()
	for _, p := range pairs {
		id, err := strconv.ParseUint(p.Pair.ID, 10, 16)
		if err != nil {
			continue
		}
		g.pairIndex[strings.ToUpper(p.Pair.Symbol())] = uint16(id)
	}
	idx, ok = g.pairIndex[symbol]
	g.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("ostium: pair %s: %w", symbol, domain.ErrNotFound)
	}
	return idx, nil
}

func (g *Gateway) traderOrOwner(trader string) common.Address {
	if trader != "" {
		return common.HexToAddress(trader)
	}
	return g.owner
}

func contractOrderType(t domain.OrderType) uint8 {
	switch t {
	case domain.OrderTypeLimit:
		return orderTypeLimit
	case domain.OrderTypeStop:
		return orderTypeStop
	default:
		return orderTypeMarket
	}
}

func errNoChain() error {
	return fmt.Errorf("ostium: %w: trading unavailable without a configured wallet", domain.ErrUnauthorized)
}
