// Package trading implements the trade lifecycle and position-accounting
// engine: numeric encoding into the venue's integer domains, financial
// calculation, position resolution, order tracking, and the coordinator
// that drives open/close/adjust actions through the venue gateway.
package trading

import (
	"context"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// OpenParams carries everything the venue needs to open a position. The
// execution price travels separately because the coordinator chooses it
// (limit price vs. current market) after validation.
type OpenParams struct {
	From       string
	To         string
	Collateral float64
	Leverage   int
	AssetType  int
	Direction  domain.Direction
	OrderType  domain.OrderType
	TakeProfit float64
	StopLoss   float64
	// Trader is the delegated position owner; empty means the signing
	// wallet trades for itself.
	Trader   string
	Slippage float64
}

// Gateway is the venue access layer the engine depends on: price reads,
// the trader's live position set, submissions, and order tracking. The
// engine never inspects transaction internals beyond the returned handles.
//
// Implementations own signing, RPC transport, and indexer access. Market
// data methods must work without trading credentials.
type Gateway interface {
	GetPrice(ctx context.Context, from, to string) (domain.PriceQuote, error)
	GetOpenPositions(ctx context.Context, trader string) ([]domain.Position, error)

	SubmitOpen(ctx context.Context, p OpenParams, executionPrice float64) (domain.SubmittedOrder, error)
	SubmitClose(ctx context.Context, marketID uint16, slot uint8, percentage uint16) (domain.SubmittedOrder, error)
	SubmitAddCollateral(ctx context.Context, marketID uint16, slot uint8, amount float64, trader string) (string, error)
	SubmitRemoveCollateral(ctx context.Context, marketID uint16, slot uint8, amount float64) (string, error)
	SubmitUpdateStopLoss(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error)
	SubmitUpdateTakeProfit(ctx context.Context, marketID uint16, slot uint8, price float64, trader string) (bool, error)

	TrackOrder(ctx context.Context, orderID string) (domain.TrackedOrder, error)
}
