package ostium

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirwatson/perpdesk/internal/domain"
)

func graphqlStub(t *testing.T, data string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":` + data + `}`))
	}))
}

func TestGetOpenTradesDescalesUnits(t *testing.T) {
	srv := graphqlStub(t, `{
		"trades": [{
			"tradeID": "7",
			"pairId": "3",
			"pair": {"id": "3", "from": "EUR", "to": "USD"},
			"index": "1",
			"trader": "0xabc",
			"isBuy": true,
			"isOpen": true,
			"collateral": "100000000",
			"leverage": "1000",
			"openPrice": "1100000000000000000",
			"stopLossPrice": "0",
			"timestamp": "1700000000"
		}]
	}`)
	defer srv.Close()

	c := NewSubgraphClient(srv.URL, "")
	positions, err := c.GetOpenTrades(context.Background(), "0xABC")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, "7", p.TradeID)
	assert.Equal(t, "3", p.MarketID)
	assert.Equal(t, "3", p.NestedPairID)
	assert.Equal(t, 1, p.Index)
	assert.Equal(t, domain.DirectionLong, p.Direction)
	assert.InDelta(t, 100.0, p.Collateral, 1e-9, "collateral is 6-decimal fixed point")
	assert.InDelta(t, 10.0, p.Leverage, 1e-9, "leverage is scaled by 100")
	assert.InDelta(t, 1.10, p.OpenPrice, 1e-9, "prices are 18-decimal fixed point")
	assert.Nil(t, p.StopLoss, "zero stop loss means none set")
	assert.Equal(t, int64(1700000000), p.OpenedAt.Unix())
}

func TestGetOrder(t *testing.T) {
	srv := graphqlStub(t, `{
		"order": {
			"id": "o-1",
			"tradeID": "7",
			"isPending": false,
			"isCancelled": true,
			"cancelReason": "slippage",
			"profitPercent": "4000000",
			"trade": {
				"tradeID": "7",
				"pair": {"id": "3", "from": "EUR", "to": "USD"},
				"isOpen": false,
				"isBuy": false,
				"openPrice": "1100000000000000000",
				"closePrice": "1120000000000000000",
				"collateral": "100000000",
				"leverage": "1000"
			}
		}
	}`)
	defer srv.Close()

	c := NewSubgraphClient(srv.URL, "")
	rec, err := c.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)

	assert.True(t, rec.Order.IsCancelled)
	assert.Equal(t, "slippage", rec.Order.CancelReason)
	assert.InDelta(t, 4.0, rec.Order.ProfitPercent, 1e-9)
	assert.False(t, rec.Trade.IsOpen)
	assert.False(t, rec.Trade.IsBuy)
	assert.InDelta(t, 1.12, rec.Trade.ClosePrice, 1e-9)
}

func TestGetOrderNotFound(t *testing.T) {
	srv := graphqlStub(t, `{"order": null}`)
	defer srv.Close()

	c := NewSubgraphClient(srv.URL, "")
	_, err := c.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGraphQLErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	c := NewSubgraphClient(srv.URL, "")
	_, err := c.GetPairs(context.Background())
	assert.ErrorContains(t, err, "rate limited")
}

func TestGetPairs(t *testing.T) {
	srv := graphqlStub(t, `{
		"pairs": [
			{"id": "0", "from": "BTC", "to": "USD", "maxLeverage": "10000", "minLeverage": "100", "lastTradePrice": "65000000000000000000000"},
			{"id": "3", "from": "EUR", "to": "USD", "maxLeverage": "20000", "minLeverage": "100", "lastTradePrice": "1100000000000000000"}
		]
	}`)
	defer srv.Close()

	c := NewSubgraphClient(srv.URL, "")
	pairs, err := c.GetPairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "BTC/USD", pairs[0].Pair.Symbol())
	assert.InDelta(t, 100.0, pairs[0].MaxLeverage, 1e-9)
	assert.InDelta(t, 65000.0, pairs[0].LastPrice, 1e-9)
	assert.Equal(t, "3", pairs[1].Pair.ID)
}
