package ostium

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/keirwatson/perpdesk/internal/crypto"
	"github.com/keirwatson/perpdesk/internal/domain"
)

// Minimal ABI surface of the venue's trading contract, the settlement
// token, and the testnet faucet. Only the methods this service calls are
// declared.
const tradingABI = `[
	{"type":"function","name":"openTrade","stateMutability":"nonpayable","inputs":[
		{"name":"t","type":"tuple","components":[
			{"name":"collateral","type":"uint256"},
			{"name":"openPrice","type":"uint256"},
			{"name":"tp","type":"uint256"},
			{"name":"sl","type":"uint256"},
			{"name":"trader","type":"address"},
			{"name":"leverage","type":"uint32"},
			{"name":"pairIndex","type":"uint16"},
			{"name":"index","type":"uint8"},
			{"name":"buy","type":"bool"}
		]},
		{"name":"orderType","type":"uint8"},
		{"name":"slippageP","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"closeTradeMarket","stateMutability":"nonpayable","inputs":[
		{"name":"pairIndex","type":"uint16"},
		{"name":"index","type":"uint8"},
		{"name":"closePercentage","type":"uint16"}
	],"outputs":[]},
	{"type":"function","name":"topUpCollateral","stateMutability":"nonpayable","inputs":[
		{"name":"trader","type":"address"},
		{"name":"pairIndex","type":"uint16"},
		{"name":"index","type":"uint8"},
		{"name":"amount","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"removeCollateral","stateMutability":"nonpayable","inputs":[
		{"name":"pairIndex","type":"uint16"},
		{"name":"index","type":"uint8"},
		{"name":"amount","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"updateSl","stateMutability":"nonpayable","inputs":[
		{"name":"trader","type":"address"},
		{"name":"pairIndex","type":"uint16"},
		{"name":"index","type":"uint8"},
		{"name":"newSl","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"updateTp","stateMutability":"nonpayable","inputs":[
		{"name":"trader","type":"address"},
		{"name":"pairIndex","type":"uint16"},
		{"name":"index","type":"uint8"},
		{"name":"newTp","type":"uint256"}
	],"outputs":[]},
	{"type":"event","name":"MarketOrderInitiated","inputs":[
		{"name":"orderId","type":"uint256","indexed":true},
		{"name":"trader","type":"address","indexed":true},
		{"name":"pairIndex","type":"uint16","indexed":true},
		{"name":"open","type":"bool","indexed":false}
	],"anonymous":false}
]`

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]}
]`

const faucetABI = `[
	{"type":"function","name":"canRequestTokens","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"nextRequestTime","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tokenAmount","stateMutability":"view","inputs":[],
	"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"requestTokens","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// contractTrade mirrors the openTrade tuple layout.
type contractTrade struct {
	Collateral *big.Int
	OpenPrice  *big.Int
	Tp         *big.Int
	Sl         *big.Int
	Trader     common.Address
	Leverage   uint32
	PairIndex  uint16
	Index      uint8
	Buy        bool
}

// TradeParams is the descaled input for an openTrade submission.
type TradeParams struct {
	Trader     common.Address
	PairIndex  uint16
	Index      uint8
	Collateral float64
	OpenPrice  float64
	Buy        bool
	Leverage   int
	TakeProfit float64
	StopLoss   float64
}

// ChainClient talks to the venue's on-chain contracts. Reads (balances,
// block number) work with a nil signer; submissions require one.
type ChainClient struct {
	eth    *ethclient.Client
	signer *crypto.Signer
	logger *slog.Logger

	trading    *bind.BoundContract
	tradingAbi abi.ABI
	token      *bind.BoundContract
	faucet     *bind.BoundContract
}

// ChainConfig names the RPC endpoint and contract addresses.
type ChainConfig struct {
	RPCURL          string
	TradingContract string
	TokenContract   string
	FaucetContract  string
}

// NewChainClient dials the RPC endpoint and binds the venue contracts.
// signer may be nil for a read-only client.
func NewChainClient(ctx context.Context, cfg ChainConfig, signer *crypto.Signer, logger *slog.Logger) (*ChainClient, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ostium/chain: dialing rpc: %w", err)
	}

	tradingParsed, err := abi.JSON(strings.NewReader(tradingABI))
	if err != nil {
		return nil, fmt.Errorf("ostium/chain: parsing trading abi: %w", err)
	}
	tokenParsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("ostium/chain: parsing token abi: %w", err)
	}
	faucetParsed, err := abi.JSON(strings.NewReader(faucetABI))
	if err != nil {
		return nil, fmt.Errorf("ostium/chain: parsing faucet abi: %w", err)
	}

	c := &ChainClient{
		eth:        eth,
		signer:     signer,
		logger:     logger.With(slog.String("component", "chain")),
		tradingAbi: tradingParsed,
		trading:    bind.NewBoundContract(common.HexToAddress(cfg.TradingContract), tradingParsed, eth, eth, eth),
		token:      bind.NewBoundContract(common.HexToAddress(cfg.TokenContract), tokenParsed, eth, eth, eth),
	}
	if cfg.FaucetContract != "" {
		c.faucet = bind.NewBoundContract(common.HexToAddress(cfg.FaucetContract), faucetParsed, eth, eth, eth)
	}
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *ChainClient) Close() {
	c.eth.Close()
}

// BlockNumber returns the node's latest block, used as the RPC health probe.
func (c *ChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ostium/chain: block number: %w", err)
	}
	return n, nil
}

// Balances returns the address's native and settlement-token balances in
// display units.
func (c *ChainClient) Balances(ctx context.Context, address string) (domain.Balances, error) {
	addr := common.HexToAddress(address)

	wei, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("ostium/chain: native balance: %w", err)
	}

	var out []any
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr); err != nil {
		return domain.Balances{}, fmt.Errorf("ostium/chain: token balance: %w", err)
	}
	tokenRaw, ok := out[0].(*big.Int)
	if !ok {
		return domain.Balances{}, fmt.Errorf("ostium/chain: token balance: unexpected return type %T", out[0])
	}

	return domain.Balances{
		Native:     fromScaled(wei, 1e18),
		Settlement: fromScaled(tokenRaw, collateralScale),
	}, nil
}

// OpenTrade submits an openTrade transaction and returns the transaction
// hash and the order id emitted by the contract.
func (c *ChainClient) OpenTrade(ctx context.Context, p TradeParams, orderType uint8, slippagePct float64) (string, string, error) {
	trade := contractTrade{
		Collateral: toScaled(p.Collateral, collateralScale),
		OpenPrice:  toScaled(p.OpenPrice, priceScale),
		Tp:         toScaled(p.TakeProfit, priceScale),
		Sl:         toScaled(p.StopLoss, priceScale),
		Trader:     p.Trader,
		Leverage:   uint32(p.Leverage * leverageScale),
		PairIndex:  p.PairIndex,
		Index:      p.Index,
		Buy:        p.Buy,
	}

	receipt, err := c.transact(ctx, "openTrade", trade, orderType, toScaled(slippagePct, leverageScale))
	if err != nil {
		return "", "", err
	}

	orderID, err := c.orderIDFromReceipt(receipt)
	if err != nil {
		return receipt.TxHash.Hex(), "", err
	}
	return receipt.TxHash.Hex(), orderID, nil
}

// CloseTradeMarket submits a market close for part or all of a position.
func (c *ChainClient) CloseTradeMarket(ctx context.Context, pairIndex uint16, index uint8, closePercentage uint16) (string, string, error) {
	receipt, err := c.transact(ctx, "closeTradeMarket", pairIndex, index, closePercentage)
	if err != nil {
		return "", "", err
	}

	orderID, err := c.orderIDFromReceipt(receipt)
	if err != nil {
		return receipt.TxHash.Hex(), "", err
	}
	return receipt.TxHash.Hex(), orderID, nil
}

// TopUpCollateral adds settlement-token collateral to an open position.
func (c *ChainClient) TopUpCollateral(ctx context.Context, trader common.Address, pairIndex uint16, index uint8, amount float64) (string, error) {
	receipt, err := c.transact(ctx, "topUpCollateral", trader, pairIndex, index, toScaled(amount, collateralScale))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// RemoveCollateral withdraws collateral from an open position.
func (c *ChainClient) RemoveCollateral(ctx context.Context, pairIndex uint16, index uint8, amount float64) (string, error) {
	receipt, err := c.transact(ctx, "removeCollateral", pairIndex, index, toScaled(amount, collateralScale))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// UpdateStopLoss sets the position's stop-loss price. The result is the
// bare success of the mined transaction.
func (c *ChainClient) UpdateStopLoss(ctx context.Context, trader common.Address, pairIndex uint16, index uint8, price float64) (bool, error) {
	receipt, err := c.transact(ctx, "updateSl", trader, pairIndex, index, toScaled(price, priceScale))
	if err != nil {
		return false, err
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

// UpdateTakeProfit sets the position's take-profit price.
func (c *ChainClient) UpdateTakeProfit(ctx context.Context, trader common.Address, pairIndex uint16, index uint8, price float64) (bool, error) {
	receipt, err := c.transact(ctx, "updateTp", trader, pairIndex, index, toScaled(price, priceScale))
	if err != nil {
		return false, err
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

// FaucetStatus reports testnet faucet eligibility for an address.
type FaucetStatus struct {
	Eligible        bool
	Amount          float64
	NextRequestTime time.Time
}

// FaucetStatus checks whether the address can request testnet tokens, and
// if not, when it next can.
func (c *ChainClient) FaucetStatus(ctx context.Context, address string) (FaucetStatus, error) {
	if c.faucet == nil {
		return FaucetStatus{}, fmt.Errorf("ostium/chain: no faucet contract configured")
	}
	addr := common.HexToAddress(address)
	opts := &bind.CallOpts{Context: ctx}

	var out []any
	if err := c.faucet.Call(opts, &out, "canRequestTokens", addr); err != nil {
		return FaucetStatus{}, fmt.Errorf("ostium/chain: faucet eligibility: %w", err)
	}
	eligible, _ := out[0].(bool)

	status := FaucetStatus{Eligible: eligible}
	if eligible {
		out = out[:0]
		if err := c.faucet.Call(opts, &out, "tokenAmount"); err != nil {
			return FaucetStatus{}, fmt.Errorf("ostium/chain: faucet amount: %w", err)
		}
		if amount, ok := out[0].(*big.Int); ok {
			status.Amount = fromScaled(amount, collateralScale)
		}
		return status, nil
	}

	out = out[:0]
	if err := c.faucet.Call(opts, &out, "nextRequestTime", addr); err != nil {
		return FaucetStatus{}, fmt.Errorf("ostium/chain: faucet next request time: %w", err)
	}
	if next, ok := out[0].(*big.Int); ok {
		status.NextRequestTime = time.Unix(next.Int64(), 0).UTC()
	}
	return status, nil
}

// RequestFaucetTokens submits a testnet token request for the signer.
func (c *ChainClient) RequestFaucetTokens(ctx context.Context) (string, error) {
	if c.faucet == nil {
		return "", fmt.Errorf("ostium/chain: no faucet contract configured")
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return "", err
	}
	tx, err := c.faucet.Transact(opts, "requestTokens")
	if err != nil {
		return "", fmt.Errorf("ostium/chain: requestTokens: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return "", fmt.Errorf("ostium/chain: waiting for faucet tx: %w", err)
	}
	return receipt.TxHash.Hex(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// transact submits a trading-contract method and waits for it to mine.
func (c *ChainClient) transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := c.trading.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("ostium/chain: %s: %w", method, err)
	}

	c.logger.DebugContext(ctx, "transaction submitted",
		slog.String("method", method),
		slog.String("tx_hash", tx.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("ostium/chain: waiting for %s tx %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("ostium/chain: %s tx %s reverted", method, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *ChainClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("ostium/chain: no signer configured, trading operations unavailable")
	}
	opts, err := c.signer.TransactOpts()
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// orderIDFromReceipt extracts the order id from the MarketOrderInitiated
// event in a mined receipt.
func (c *ChainClient) orderIDFromReceipt(receipt *types.Receipt) (string, error) {
	eventID := c.tradingAbi.Events["MarketOrderInitiated"].ID
	for _, l := range receipt.Logs {
		if len(l.Topics) >= 2 && l.Topics[0] == eventID {
			return new(big.Int).SetBytes(l.Topics[1].Bytes()).String(), nil
		}
	}
	return "", fmt.Errorf("ostium/chain: no order id in receipt %s", receipt.TxHash.Hex())
}

// toScaled converts a display-unit value into the contract's fixed-point
// integer representation.
func toScaled(v float64, scale float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(scale))
	out, _ := f.Int(nil)
	return out
}

// fromScaled converts a raw contract integer into display units.
func fromScaled(v *big.Int, scale float64) float64 {
	if v == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(scale)).Float64()
	return out
}
