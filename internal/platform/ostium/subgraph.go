package ostium

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// SubgraphClient queries the venue's subgraph indexer for trades, orders,
// history, and pair metadata. It needs no credentials beyond an optional
// bearer key for hosted endpoints.
type SubgraphClient struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewSubgraphClient creates a subgraph client for the given GraphQL
// endpoint.
func NewSubgraphClient(graphqlURL, apiKey string) *SubgraphClient {
	return &SubgraphClient{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetOpenTrades returns the trader's currently open positions.
func (c *SubgraphClient) GetOpenTrades(ctx context.Context, trader string) ([]domain.Position, error) {
	query := `
		query OpenTrades($trader: String!) {
			trades(
				where: { trader: $trader, isOpen: true }
				orderBy: timestamp
				orderDirection: asc
			) {
				tradeID
				pairId
				pair { id from to }
				index
				trader
				isBuy
				isOpen
				collateral
				leverage
				openPrice
				takeProfitPrice
				stopLossPrice
				timestamp
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"trader": strings.ToLower(trader)})
	if err != nil {
		return nil, fmt.Errorf("ostium/subgraph: fetch open trades: %w", err)
	}

	var result struct {
		Trades []rawTrade `json:"trades"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("ostium/subgraph: decode open trades: %w", err)
	}

	positions := make([]domain.Position, 0, len(result.Trades))
	for _, t := range result.Trades {
		positions = append(positions, t.toDomainPosition())
	}
	return positions, nil
}

// GetOrder returns the order with the given id together with its trade.
// An unknown id is domain.ErrNotFound; shortly after submission that
// usually means indexing lag and callers are expected to retry.
func (c *SubgraphClient) GetOrder(ctx context.Context, orderID string) (domain.TrackedOrder, error) {
	query := `
		query Order($id: ID!) {
			order(id: $id) {
				id
				tradeID
				isPending
				isCancelled
				cancelReason
				profitPercent
				amountSentToTrader
				fundingFee
				rolloverFee
				liquidationFee
				trade {
					tradeID
					pair { id from to }
					isOpen
					isBuy
					openPrice
					closePrice
					collateral
					leverage
					profitPercent
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"id": orderID})
	if err != nil {
		return domain.TrackedOrder{}, fmt.Errorf("ostium/subgraph: fetch order %s: %w", orderID, err)
	}

	var result struct {
		Order *rawOrder `json:"order"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.TrackedOrder{}, fmt.Errorf("ostium/subgraph: decode order: %w", err)
	}
	if result.Order == nil {
		return domain.TrackedOrder{}, fmt.Errorf("ostium/subgraph: order %s: %w", orderID, domain.ErrNotFound)
	}
	return result.Order.toDomainTracked(), nil
}

// GetRecentHistory returns the trader's most recent trades, open and
// closed, newest first.
func (c *SubgraphClient) GetRecentHistory(ctx context.Context, trader string, limit int) ([]domain.HistoryEntry, error) {
	query := `
		query RecentHistory($trader: String!, $first: Int!) {
			trades(
				where: { trader: $trader }
				orderBy: timestamp
				orderDirection: desc
				first: $first
			) {
				tradeID
				pairId
				pair { id from to }
				index
				trader
				isBuy
				isOpen
				collateral
				leverage
				openPrice
				closePrice
				profitPercent
				timestamp
			}
		}
	`

	variables := map[string]any{
		"trader": strings.ToLower(trader),
		"first":  limit,
	}
	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("ostium/subgraph: fetch history: %w", err)
	}

	var result struct {
		Trades []rawTrade `json:"trades"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("ostium/subgraph: decode history: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(result.Trades))
	for _, t := range result.Trades {
		entries = append(entries, t.toDomainHistory())
	}
	return entries, nil
}

// GetPairs returns every listed market with its trading parameters.
func (c *SubgraphClient) GetPairs(ctx context.Context) ([]domain.PairDetail, error) {
	query := `
		query Pairs {
			pairs(orderBy: id, orderDirection: asc) {
				id
				from
				to
				maxLeverage
				minLeverage
				makerFeeP
				takerFeeP
				lastTradePrice
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("ostium/subgraph: fetch pairs: %w", err)
	}

	var result struct {
		Pairs []rawPairDetail `json:"pairs"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("ostium/subgraph: decode pairs: %w", err)
	}

	details := make([]domain.PairDetail, 0, len(result.Pairs))
	for _, p := range result.Pairs {
		details = append(details, p.toDomainDetail())
	}
	return details, nil
}

// FetchLatestBlock returns the latest block number the subgraph has
// indexed, for monitoring indexing lag.
func (c *SubgraphClient) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("ostium/subgraph: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("ostium/subgraph: decode latest block: %w", err)
	}
	return result.Meta.Block.Number, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *SubgraphClient) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}
