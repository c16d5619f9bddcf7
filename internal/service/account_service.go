package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keirwatson/perpdesk/internal/domain"
	"github.com/keirwatson/perpdesk/internal/platform/ostium"
)

// ChainReader is the on-chain surface the account service needs. Implemented
// by the ostium chain client.
type ChainReader interface {
	Balances(ctx context.Context, address string) (domain.Balances, error)
	FaucetStatus(ctx context.Context, address string) (ostium.FaucetStatus, error)
	RequestFaucetTokens(ctx context.Context) (string, error)
}

// AccountService serves wallet balances and the testnet faucet.
type AccountService struct {
	chain  ChainReader
	audit  domain.OrderLogStore
	owner  string
	logger *slog.Logger
}

// NewAccountService creates an AccountService for the given owner wallet.
func NewAccountService(chain ChainReader, audit domain.OrderLogStore, owner string, logger *slog.Logger) *AccountService {
	return &AccountService{
		chain:  chain,
		audit:  audit,
		owner:  owner,
		logger: logger.With(slog.String("component", "account_service")),
	}
}

// Balances returns the native and settlement token balances for the given
// address, or the configured owner when address is empty.
func (s *AccountService) Balances(ctx context.Context, address string) (domain.Balances, error) {
	if address == "" {
		address = s.owner
	}
	balances, err := s.chain.Balances(ctx, address)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("account_service: balances for %s: %w", address, err)
	}
	return balances, nil
}

// FaucetStatus reports whether the owner wallet can draw testnet tokens.
func (s *AccountService) FaucetStatus(ctx context.Context) (ostium.FaucetStatus, error) {
	status, err := s.chain.FaucetStatus(ctx, s.owner)
	if err != nil {
		return ostium.FaucetStatus{}, fmt.Errorf("account_service: faucet status: %w", err)
	}
	return status, nil
}

// RequestFaucet draws testnet tokens for the owner wallet. Eligibility is
// checked first so an ineligible request never spends gas.
func (s *AccountService) RequestFaucet(ctx context.Context) (string, error) {
	status, err := s.chain.FaucetStatus(ctx, s.owner)
	if err != nil {
		return "", fmt.Errorf("account_service: faucet status: %w", err)
	}
	if !status.Eligible {
		return "", fmt.Errorf("account_service: faucet not available until %s: %w",
			status.NextRequestTime.Format("2006-01-02 15:04:05"), domain.ErrRateLimited)
	}

	txHash, err := s.chain.RequestFaucetTokens(ctx)
	if err != nil {
		return "", fmt.Errorf("account_service: request faucet: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "faucet_requested", map[string]any{
		"tx_hash": txHash,
		"amount":  status.Amount,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", "faucet_requested"),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "faucet tokens requested",
		slog.String("tx_hash", txHash),
		slog.Float64("amount", status.Amount),
	)
	return txHash, nil
}
