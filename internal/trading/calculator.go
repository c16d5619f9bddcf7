package trading

import (
	"math"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// Pure position-accounting arithmetic. All functions are total: zero
// leverage or zero collateral yields a defined degenerate value instead of
// a division by zero. Internal accumulation stays unrounded; Round2 is
// applied only when a figure is placed into a display summary.

// PositionSize is the notional size backed by collateral at the given
// leverage.
func PositionSize(collateral, leverage float64) float64 {
	return collateral * leverage
}

// LiquidationPriceAtOpen is the liquidation estimate used immediately after
// placement, before the venue's maintenance margin is known precisely:
// the full 1/leverage distance from entry.
func LiquidationPriceAtOpen(entryPrice, leverage float64, direction domain.Direction) float64 {
	if leverage <= 0 {
		return entryPrice
	}
	if direction == domain.DirectionLong {
		return entryPrice * (1 - 1/leverage)
	}
	return entryPrice * (1 + 1/leverage)
}

// LiquidationPriceEstimate is the live estimate for an already-open
// position. The 0.9 factor is a conservative buffer: the venue liquidates
// before losses consume all collateral, so the estimate sits closer to
// entry than the at-open figure. Not interchangeable with
// LiquidationPriceAtOpen.
func LiquidationPriceEstimate(entryPrice, leverage float64, direction domain.Direction) float64 {
	if leverage <= 0 {
		return entryPrice
	}
	if direction == domain.DirectionLong {
		return entryPrice * (1 - 0.9/leverage)
	}
	return entryPrice * (1 + 0.9/leverage)
}

// PnLOpen is the unrealized profit of an open position of the given
// notional size between entry and exit prices.
func PnLOpen(entryPrice, exitPrice, positionSize float64, direction domain.Direction) float64 {
	if entryPrice <= 0 {
		return 0
	}
	if direction == domain.DirectionLong {
		return (exitPrice - entryPrice) / entryPrice * positionSize
	}
	return (entryPrice - exitPrice) / entryPrice * positionSize
}

// PnLPercentage expresses a profit as a percentage of collateral.
func PnLPercentage(pnl, collateral float64) float64 {
	if collateral <= 0 {
		return 0
	}
	return pnl / collateral * 100
}

// PnLClosed converts the venue-reported realized percentage back into an
// absolute amount. The indexer's percentage is authoritative for closed
// trades; it is never recomputed from prices.
func PnLClosed(reportedPercentage, collateral float64) float64 {
	return reportedPercentage / 100 * collateral
}

// Round2 rounds a monetary figure to two decimals for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
