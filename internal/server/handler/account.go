package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/keirwatson/perpdesk/internal/domain"
	"github.com/keirwatson/perpdesk/internal/platform/ostium"
)

// AccountService defines the methods that the account handler requires.
type AccountService interface {
	Balances(ctx context.Context, address string) (domain.Balances, error)
	FaucetStatus(ctx context.Context) (ostium.FaucetStatus, error)
	RequestFaucet(ctx context.Context) (string, error)
}

// AccountHandler serves wallet balance and faucet endpoints.
type AccountHandler struct {
	account AccountService
	logger  *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and logger.
func NewAccountHandler(account AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		account: account,
		logger:  logHandler(logger, "account"),
	}
}

// GetBalances returns the native and settlement-token balances for a wallet,
// defaulting to the configured owner when no address is given.
// GET /api/account/balances?address=0x...
func (h *AccountHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")

	balances, err := h.account.Balances(r.Context(), address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get balances failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balances)
}

// RequestFaucet draws testnet settlement tokens for the owner wallet. An
// ineligible wallet gets a 429 carrying the next request time.
// POST /api/account/faucet
func (h *AccountHandler) RequestFaucet(w http.ResponseWriter, r *http.Request) {
	txHash, err := h.account.RequestFaucet(r.Context())
	if err != nil {
		if statusFromError(err) >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "faucet request failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "requested",
		"tx_hash": txHash,
	})
}
