package handler

import (
	"context"
	"net/http"

	"github.com/quantfell/perpcaster/internal/broadcast"
	"github.com/quantfell/perpcaster/internal/domain"
	"github.com/quantfell/perpcaster/internal/service"
)

// AccountReader is the subset of the exchange client used by the direct
// proxy endpoints.
type AccountReader interface {
	Positions(ctx context.Context) ([]domain.Position, error)
	Balance(ctx context.Context) (*domain.Balance, error)
	Trades(ctx context.Context) ([]domain.Trade, error)
}

// AccountHandler serves the cached account view, the legacy direct-proxy
// reads, and the broadcaster's stats.
type AccountHandler struct {
	account  *service.AccountService
	exchange AccountReader
	hub      *broadcast.Hub
}

func NewAccountHandler(account *service.AccountService, exchange AccountReader, hub *broadcast.Hub) *AccountHandler {
	return &AccountHandler{account: account, exchange: exchange, hub: hub}
}

// CachedAccount returns the full snapshot with per-category staleness.
// GET /api/cached-account
func (h *AccountHandler) CachedAccount(w http.ResponseWriter, r *http.Request) {
	view, err := h.account.CachedAccount()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Positions proxies a positions read straight to the exchange, bypassing
// the cache.
// GET /api/positions
func (h *AccountHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.exchange.Positions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// Balance proxies a balance read straight to the exchange.
// GET /api/balance
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.exchange.Balance(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Trades proxies a trade-history read straight to the exchange.
// GET /api/trades
func (h *AccountHandler) Trades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.exchange.Trades(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// BroadcasterStats returns the WebSocket hub's operational counters.
// GET /api/broadcaster/stats
func (h *AccountHandler) BroadcasterStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}
