package domain

// FeeBreakdown itemizes the venue fees reported on a closed trade.
type FeeBreakdown struct {
	Funding     float64 `json:"funding_fee"`
	Rollover    float64 `json:"rollover_fee"`
	Liquidation float64 `json:"liquidation_fee"`
}

// TradeSummary is the computed financial report attached to a successful
// trade action. Liquidation is nil when not applicable (a fully closed
// position has nothing left to liquidate). All monetary fields are rounded
// to two decimals for display.
type TradeSummary struct {
	TradeID            string       `json:"trade_id,omitempty"`
	Entry              float64      `json:"entry"`
	ExitPrice          float64      `json:"exit_price,omitempty"`
	CurrentPrice       float64      `json:"current_price,omitempty"`
	Size               float64      `json:"size"`
	Liquidation        *float64     `json:"liquidation"`
	Direction          Direction    `json:"direction"`
	ProfitLoss         float64      `json:"profit_loss,omitempty"`
	ProfitLossPercent  float64      `json:"profit_loss_percentage,omitempty"`
	AmountSentToTrader float64      `json:"amount_sent_to_trader,omitempty"`
	Fees               FeeBreakdown `json:"fees,omitempty"`
	Closed             bool         `json:"closed"`
}

// PlaceOrderResult reports a successful order placement.
type PlaceOrderResult struct {
	TxHash  string        `json:"tx_hash"`
	OrderID string        `json:"order_id"`
	Price   float64       `json:"price"`
	Pair    string        `json:"pair"`
	Summary *TradeSummary `json:"summary,omitempty"`
}

// ClosePositionResult reports the outcome of a close submission. Tracked is
// false when the order was submitted but its terminal state could not be
// observed within the tracking budget; in that case Summary is nil and the
// close must still be treated as submitted, not failed.
type ClosePositionResult struct {
	TxHash      string        `json:"tx_hash"`
	OrderID     string        `json:"order_id"`
	TradeID     string        `json:"trade_id"`
	ProfitLoss  float64       `json:"pnl"`
	OrderStatus OrderState    `json:"order_status"`
	Tracked     bool          `json:"tracked"`
	Summary     *TradeSummary `json:"summary,omitempty"`
}

// CollateralResult reports a collateral adjustment.
type CollateralResult struct {
	TxHash   string  `json:"tx_hash"`
	MarketID string  `json:"market_id"`
	Index    int     `json:"index"`
	Amount   float64 `json:"amount"`
}

// ProtectionResult reports a stop-loss or take-profit update. The venue's
// mutation returns a bare boolean.
type ProtectionResult struct {
	OK       bool    `json:"ok"`
	MarketID string  `json:"market_id"`
	Index    int     `json:"index"`
	Price    float64 `json:"price"`
}
