package domain

import "time"

// MarketPair identifies a tradable instrument by its (from, to) symbol pair
// and the venue-assigned market id. The id is immutable once assigned and
// always fits the venue's uint16 domain.
type MarketPair struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Symbol renders the pair in "FROM/TO" form.
func (p MarketPair) Symbol() string {
	return p.From + "/" + p.To
}

// PairDetail carries the per-market metadata exposed by the venue indexer.
type PairDetail struct {
	Pair        MarketPair `json:"pair"`
	MaxLeverage float64    `json:"max_leverage"`
	MinLeverage float64    `json:"min_leverage"`
	MakerFeeP   float64    `json:"maker_fee_p"`
	TakerFeeP   float64    `json:"taker_fee_p"`
	LastPrice   float64    `json:"last_price"`
}

// PriceQuote is the venue price endpoint's answer for a pair.
type PriceQuote struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	IsOpen    bool      `json:"is_open"`
	Timestamp time.Time `json:"timestamp"`
}

// Balances reports a trader's native (gas) and settlement-token balances.
type Balances struct {
	Native     float64 `json:"native"`
	Settlement float64 `json:"settlement"`
}
