package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthInfo carries the static deployment facts reported by the health
// endpoint.
type HealthInfo struct {
	Network           string
	WalletConfigured  bool
	DelegationEnabled bool
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	info   HealthInfo
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided deployment info.
func NewHealthHandler(info HealthInfo, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{info: info, logger: logger}
}

// HealthCheck reports liveness plus the network the service trades on and
// whether a signing wallet and delegated trader are configured.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"network":            h.info.Network,
		"wallet_configured":  h.info.WalletConfigured,
		"delegation_enabled": h.info.DelegationEnabled,
	})
}
