package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quantfell/perpcaster/internal/domain"
	"github.com/quantfell/perpcaster/internal/service"
)

// OrderAPI is the exchange mutation surface the order handler proxies.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// OrderHandler serves the manual order endpoints: list from cache, place
// and cancel against the exchange.
type OrderHandler struct {
	account  *service.AccountService
	exchange OrderAPI
}

func NewOrderHandler(account *service.AccountService, exchange OrderAPI) *OrderHandler {
	return &OrderHandler{account: account, exchange: exchange}
}

// ListOrders returns the cached open orders.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.account.OpenOrders()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// PlaceOrder signs and submits a manual order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order request body")
		return
	}
	if req.Market == "" || req.Price <= 0 || req.Size <= 0 {
		writeError(w, http.StatusBadRequest, "market, positive price, and positive size are required")
		return
	}
	if req.TimeInForce == "" {
		req.TimeInForce = domain.TimeInForceGTC
	}
	if !domain.ValidTimeInForce(req.TimeInForce) {
		writeError(w, http.StatusBadRequest, "invalid time in force")
		return
	}

	ack, err := h.exchange.CreateOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

// CancelOrder cancels an order by exchange ID.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}
	if err := h.exchange.CancelOrder(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "orderId": id})
}
