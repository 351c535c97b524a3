package handler

import (
	"net/http"

	"github.com/quantfell/perpcaster/internal/domain"
)

// PriceHandler serves the externally fed mark prices.
type PriceHandler struct {
	prices domain.MarkPriceCache
}

func NewPriceHandler(prices domain.MarkPriceCache) *PriceHandler {
	return &PriceHandler{prices: prices}
}

// AllPrices returns every mark price currently mirrored from the feed.
// GET /api/prices
func (h *PriceHandler) AllPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.prices.AllPrices(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}
