// Package ostium implements the venue gateway: the on-chain trading
// contract, the subgraph indexer, and the price endpoint. Market data works
// without trading credentials; submissions require a configured signer.
package ostium

import (
	"math/big"
	"strconv"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// On-chain and subgraph fixed-point scales. The contract stores collateral
// in settlement-token units (6 decimals), leverage times 100, and prices
// with 18 decimals. The subgraph reports the same raw integers as strings.
const (
	collateralScale = 1e6
	leverageScale   = 100
	priceScale      = 1e18
	percentScale    = 1e6
)

// rawPair is the subgraph's nested pair entity.
type rawPair struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// rawTrade is the subgraph's trade entity. Numeric fields arrive as decimal
// strings in raw contract units.
type rawTrade struct {
	TradeID       string  `json:"tradeID"`
	PairID        string  `json:"pairId"`
	Pair          rawPair `json:"pair"`
	Index         string  `json:"index"`
	Trader        string  `json:"trader"`
	IsBuy         bool    `json:"isBuy"`
	IsOpen        bool    `json:"isOpen"`
	Collateral    string  `json:"collateral"`
	Leverage      string  `json:"leverage"`
	OpenPrice     string  `json:"openPrice"`
	ClosePrice    string  `json:"closePrice"`
	TakeProfit    string  `json:"takeProfitPrice"`
	StopLoss      string  `json:"stopLossPrice"`
	ProfitPercent string  `json:"profitPercent"`
	Timestamp     string  `json:"timestamp"`
}

// rawOrder is the subgraph's order entity.
type rawOrder struct {
	ID                 string   `json:"id"`
	TradeID            string   `json:"tradeID"`
	IsPending          bool     `json:"isPending"`
	IsCancelled        bool     `json:"isCancelled"`
	CancelReason       string   `json:"cancelReason"`
	ProfitPercent      string   `json:"profitPercent"`
	AmountSentToTrader string   `json:"amountSentToTrader"`
	FundingFee         string   `json:"fundingFee"`
	RolloverFee        string   `json:"rolloverFee"`
	LiquidationFee     string   `json:"liquidationFee"`
	Trade              rawTrade `json:"trade"`
}

// rawPairDetail is the subgraph's pair entity with trading parameters.
type rawPairDetail struct {
	ID           string `json:"id"`
	From         string `json:"from"`
	To           string `json:"to"`
	MaxLeverage  string `json:"maxLeverage"`
	MinLeverage  string `json:"minLeverage"`
	MakerFeeP    string `json:"makerFeeP"`
	TakerFeeP    string `json:"takerFeeP"`
	LastTradePrice string `json:"lastTradePrice"`
}

// toDomainPosition converts a subgraph trade into the domain position,
// descaling contract units into display units.
func (t rawTrade) toDomainPosition() domain.Position {
	index, _ := strconv.Atoi(t.Index)
	sl := scaledPtr(t.StopLoss, priceScale)
	tp := scaledPtr(t.TakeProfit, priceScale)
	return domain.Position{
		TradeID:      t.TradeID,
		MarketID:     t.PairID,
		NestedPairID: t.Pair.ID,
		Index:        index,
		Trader:       t.Trader,
		Pair:         domain.MarketPair{ID: t.Pair.ID, From: t.Pair.From, To: t.Pair.To},
		Direction:    domain.DirectionFromBool(t.IsBuy),
		Collateral:   scaled(t.Collateral, collateralScale),
		Leverage:     scaled(t.Leverage, leverageScale),
		OpenPrice:    scaled(t.OpenPrice, priceScale),
		StopLoss:     sl,
		TakeProfit:   tp,
		OpenedAt:     unixTime(t.Timestamp),
	}
}

// toDomainHistory converts a subgraph trade into a history row.
func (t rawTrade) toDomainHistory() domain.HistoryEntry {
	return domain.HistoryEntry{
		TradeID:       t.TradeID,
		Pair:          domain.MarketPair{ID: t.Pair.ID, From: t.Pair.From, To: t.Pair.To},
		Direction:     domain.DirectionFromBool(t.IsBuy),
		Collateral:    scaled(t.Collateral, collateralScale),
		Leverage:      scaled(t.Leverage, leverageScale),
		OpenPrice:     scaled(t.OpenPrice, priceScale),
		ClosePrice:    scaled(t.ClosePrice, priceScale),
		ProfitPercent: scaled(t.ProfitPercent, percentScale),
		IsOpen:        t.IsOpen,
		Timestamp:     unixTime(t.Timestamp),
	}
}

// toDomainTracked converts a subgraph order+trade record into the tracked
// order the engine consumes.
func (o rawOrder) toDomainTracked() domain.TrackedOrder {
	return domain.TrackedOrder{
		Order: domain.TrackedOrderRecord{
			ID:                 o.ID,
			TradeID:            o.TradeID,
			IsPending:          o.IsPending,
			IsCancelled:        o.IsCancelled,
			CancelReason:       o.CancelReason,
			ProfitPercent:      scaled(o.ProfitPercent, percentScale),
			AmountSentToTrader: scaled(o.AmountSentToTrader, collateralScale),
			FundingFee:         scaled(o.FundingFee, collateralScale),
			RolloverFee:        scaled(o.RolloverFee, collateralScale),
			LiquidationFee:     scaled(o.LiquidationFee, collateralScale),
		},
		Trade: domain.TrackedTradeRecord{
			TradeID:       o.Trade.TradeID,
			Pair:          domain.MarketPair{ID: o.Trade.Pair.ID, From: o.Trade.Pair.From, To: o.Trade.Pair.To},
			IsOpen:        o.Trade.IsOpen,
			IsBuy:         o.Trade.IsBuy,
			OpenPrice:     scaled(o.Trade.OpenPrice, priceScale),
			ClosePrice:    scaled(o.Trade.ClosePrice, priceScale),
			Collateral:    scaled(o.Trade.Collateral, collateralScale),
			Leverage:      scaled(o.Trade.Leverage, leverageScale),
			ProfitPercent: scaled(o.Trade.ProfitPercent, percentScale),
		},
	}
}

func (p rawPairDetail) toDomainDetail() domain.PairDetail {
	return domain.PairDetail{
		Pair:        domain.MarketPair{ID: p.ID, From: p.From, To: p.To},
		MaxLeverage: scaled(p.MaxLeverage, leverageScale),
		MinLeverage: scaled(p.MinLeverage, leverageScale),
		MakerFeeP:   scaled(p.MakerFeeP, percentScale),
		TakerFeeP:   scaled(p.TakerFeeP, percentScale),
		LastPrice:   scaled(p.LastTradePrice, priceScale),
	}
}

// scaled parses a raw decimal string and divides by the given scale. Empty
// or malformed values descale to zero; the subgraph omits fields that do
// not apply.
func scaled(raw string, scale float64) float64 {
	if raw == "" {
		return 0
	}
	f, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	out, _ := new(big.Float).Quo(f, big.NewFloat(scale)).Float64()
	return out
}

// scaledPtr is scaled for optional fields: empty or zero stays nil.
func scaledPtr(raw string, scale float64) *float64 {
	if raw == "" || raw == "0" {
		return nil
	}
	v := scaled(raw, scale)
	if v == 0 {
		return nil
	}
	return &v
}

func unixTime(raw string) time.Time {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
