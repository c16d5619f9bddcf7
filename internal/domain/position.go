package domain

import "time"

// Direction is the side of a leveraged position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// DirectionFromBool maps the venue's isBuy flag onto a Direction.
func DirectionFromBool(isBuy bool) Direction {
	if isBuy {
		return DirectionLong
	}
	return DirectionShort
}

// Position is an open trade owned by a trader address, as reported by the
// venue indexer. The engine never holds a long-lived copy; the authoritative
// set is re-fetched on every resolution.
//
// MarketID and NestedPairID are kept as the indexer's raw string ids because
// client-supplied identifiers are matched against them verbatim. Index is
// the venue slot index distinguishing concurrent positions in one market.
type Position struct {
	TradeID      string     `json:"trade_id"`
	MarketID     string     `json:"market_id"`
	NestedPairID string     `json:"nested_pair_id"`
	Index        int        `json:"index"`
	Trader       string     `json:"trader"`
	Pair         MarketPair `json:"pair"`
	Direction    Direction  `json:"direction"`
	Collateral   float64    `json:"collateral"` // settlement-token units
	Leverage     float64    `json:"leverage"`
	OpenPrice    float64    `json:"open_price"`
	StopLoss     *float64   `json:"stop_loss,omitempty"`
	TakeProfit   *float64   `json:"take_profit,omitempty"`
	OpenedAt     time.Time  `json:"opened_at"`
}

// HistoryEntry is one row of a trader's recent trade/order history from the
// venue indexer.
type HistoryEntry struct {
	TradeID       string     `json:"trade_id"`
	OrderID       string     `json:"order_id"`
	Pair          MarketPair `json:"pair"`
	Direction     Direction  `json:"direction"`
	Collateral    float64    `json:"collateral"`
	Leverage      float64    `json:"leverage"`
	OpenPrice     float64    `json:"open_price"`
	ClosePrice    float64    `json:"close_price"`
	ProfitPercent float64    `json:"profit_percent"`
	IsOpen        bool       `json:"is_open"`
	Timestamp     time.Time  `json:"timestamp"`
}
