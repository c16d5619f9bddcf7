package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirwatson/perpdesk/internal/domain"
)

func TestResolveTradeIDAndMarketIDReachSamePosition(t *testing.T) {
	live := []domain.Position{
		{TradeID: "7", MarketID: "3", NestedPairID: "3", Index: 0, Pair: domain.MarketPair{From: "EUR", To: "USD"}},
	}

	byTrade, err := Resolve("7", nil, live)
	require.NoError(t, err)

	byMarket, err := Resolve("3", nil, live)
	require.NoError(t, err)

	assert.Equal(t, byTrade, byMarket)
	assert.Equal(t, 3, byTrade.MarketID)
	assert.Equal(t, 0, byTrade.SlotIndex)
	assert.Equal(t, "7", byTrade.Position.TradeID)
}

func TestResolveTradeIDBeatsMarketID(t *testing.T) {
	// "3" is position A's trade id and position B's market id
	live := []domain.Position{
		{TradeID: "9", MarketID: "3", NestedPairID: "3", Index: 1},
		{TradeID: "3", MarketID: "5", NestedPairID: "5", Index: 0},
	}

	res, err := Resolve("3", nil, live)
	require.NoError(t, err)
	assert.Equal(t, "3", res.Position.TradeID)
	assert.Equal(t, 5, res.MarketID)
}

func TestResolveIndexDisambiguatesSameMarket(t *testing.T) {
	live := []domain.Position{
		{TradeID: "10", MarketID: "3", NestedPairID: "3", Index: 0},
		{TradeID: "11", MarketID: "3", NestedPairID: "3", Index: 2},
	}

	res, err := Resolve("3", intPtr(2), live)
	require.NoError(t, err)
	assert.Equal(t, "11", res.Position.TradeID)
	assert.Equal(t, 2, res.SlotIndex)

	// no hint: indexer list order decides
	res, err = Resolve("3", nil, live)
	require.NoError(t, err)
	assert.Equal(t, "10", res.Position.TradeID)

	// hint matching no slot falls back to first match
	res, err = Resolve("3", intPtr(9), live)
	require.NoError(t, err)
	assert.Equal(t, "10", res.Position.TradeID)
}

func TestResolveNotFound(t *testing.T) {
	live := []domain.Position{
		{TradeID: "7", MarketID: "3", NestedPairID: "3"},
	}

	_, err := Resolve("99", nil, live)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = Resolve("1", nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveEmptyCandidate(t *testing.T) {
	_, err := Resolve("", nil, []domain.Position{{TradeID: "7"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolveNonNumericMarketID(t *testing.T) {
	live := []domain.Position{
		{TradeID: "abc", MarketID: "not-a-number", NestedPairID: ""},
	}

	res, err := Resolve("abc", nil, live)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MarketID, "unparseable ids address market 0")
}
