package domain

// SubmittedOrder is the transient handle returned by the venue after a
// submission: the opaque order id used for tracking plus the transaction
// reference. It exists only for the duration of tracking.
type SubmittedOrder struct {
	OrderID string `json:"order_id"`
	TxHash  string `json:"tx_hash"`
}

// OrderState is the tracker's classification of a submitted order.
type OrderState string

const (
	OrderStatePending   OrderState = "Pending"
	OrderStateProcessed OrderState = "Processed"
	OrderStateCancelled OrderState = "Cancelled"
)

// Terminal reports whether the state will never change again.
func (s OrderState) Terminal() bool {
	return s == OrderStateProcessed || s == OrderStateCancelled
}

// OrderOutcome is the terminal (or budget-exhausted) result of tracking a
// submitted order. CancelReason is the venue's reason, verbatim, and is only
// set when State is Cancelled.
type OrderOutcome struct {
	State        OrderState `json:"state"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// TrackedOrder is the indexer's record for a submitted order and its
// associated trade. The isPending flag is decisive: false means terminal.
type TrackedOrder struct {
	Order TrackedOrderRecord `json:"order"`
	Trade TrackedTradeRecord `json:"trade"`
}

// TrackedOrderRecord mirrors the indexer's order entity.
type TrackedOrderRecord struct {
	ID                 string  `json:"id"`
	TradeID            string  `json:"trade_id"`
	IsPending          bool    `json:"is_pending"`
	IsCancelled        bool    `json:"is_cancelled"`
	CancelReason       string  `json:"cancel_reason,omitempty"`
	ProfitPercent      float64 `json:"profit_percent"`
	AmountSentToTrader float64 `json:"amount_sent_to_trader"`
	FundingFee         float64 `json:"funding_fee"`
	RolloverFee        float64 `json:"rollover_fee"`
	LiquidationFee     float64 `json:"liquidation_fee"`
}

// TrackedTradeRecord mirrors the indexer's trade entity for the order.
type TrackedTradeRecord struct {
	TradeID       string     `json:"trade_id"`
	Pair          MarketPair `json:"pair"`
	IsOpen        bool       `json:"is_open"`
	IsBuy         bool       `json:"is_buy"`
	OpenPrice     float64    `json:"open_price"`
	ClosePrice    float64    `json:"close_price"`
	Collateral    float64    `json:"collateral"`
	Leverage      float64    `json:"leverage"`
	ProfitPercent float64    `json:"profit_percent"`
}
