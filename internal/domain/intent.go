package domain

// OrderType selects how an open order executes.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// PlaceOrderIntent is a validated request to open a leveraged position.
type PlaceOrderIntent struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Collateral float64   `json:"collateral"`
	Leverage   int       `json:"leverage"`
	AssetType  int       `json:"asset_type"`
	Direction  Direction `json:"direction"`
	OrderType  OrderType `json:"order_type"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	LimitPrice *float64  `json:"limit_price,omitempty"`
	// Trader optionally names a delegated position owner; empty means the
	// signing wallet trades for itself.
	Trader string `json:"trader,omitempty"`
}

// ClosePositionIntent is a request to close all or part of an open position.
// CandidateID may loosely refer to a trade id, a market id, or a nested pair
// id from a prior response; the resolver recovers the canonical addressing.
type ClosePositionIntent struct {
	CandidateID    string `json:"candidate_id"`
	CandidateIndex *int   `json:"candidate_index,omitempty"`
	Percentage     *int   `json:"percentage,omitempty"` // default 100
	Trader         string `json:"trader,omitempty"`
}

// CollateralIntent adjusts the collateral backing an open position.
type CollateralIntent struct {
	CandidateID    string  `json:"candidate_id"`
	CandidateIndex *int    `json:"candidate_index,omitempty"`
	Amount         float64 `json:"amount"`
	Trader         string  `json:"trader,omitempty"`
}

// ProtectionIntent updates a position's stop-loss or take-profit price.
type ProtectionIntent struct {
	CandidateID    string  `json:"candidate_id"`
	CandidateIndex *int    `json:"candidate_index,omitempty"`
	Price          float64 `json:"price"`
	Trader         string  `json:"trader,omitempty"`
}
