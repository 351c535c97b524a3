package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quantfell/perpcaster/internal/bot"
	"github.com/quantfell/perpcaster/internal/service"
)

// BotHandler exposes the market-making engine's control surface.
type BotHandler struct {
	engine *bot.Engine
	logs   *service.BotLog
}

func NewBotHandler(engine *bot.Engine, logs *service.BotLog) *BotHandler {
	return &BotHandler{engine: engine, logs: logs}
}

// botConfigBody is the wire form of the engine config. Durations travel
// as Go duration strings ("5s", "250ms").
type botConfigBody struct {
	Market             string  `json:"market"`
	SpreadPercentage   float64 `json:"spreadPercentage"`
	OrderSize          float64 `json:"orderSize"`
	RefreshInterval    string  `json:"refreshInterval"`
	PriceMoveThreshold float64 `json:"priceMoveThreshold"`
	PriceStalenessMax  string  `json:"priceStalenessMax"`
}

func configToBody(cfg bot.Config) botConfigBody {
	return botConfigBody{
		Market:             cfg.Market,
		SpreadPercentage:   cfg.SpreadPercentage,
		OrderSize:          cfg.OrderSize,
		RefreshInterval:    cfg.RefreshInterval.String(),
		PriceMoveThreshold: cfg.PriceMoveThreshold,
		PriceStalenessMax:  cfg.PriceStalenessMax.String(),
	}
}

// Start launches the quoting loop.
// POST /api/bot/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Stop halts the loop and cancels the engine's resting quotes.
// POST /api/bot/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Status reports the engine state and tracked quotes.
// GET /api/bot/status
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// GetConfig returns the current quoting parameters.
// GET /api/bot/config
func (h *BotHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configToBody(h.engine.Config()))
}

// UpdateConfig replaces the quoting parameters. 409 while running.
// PUT /api/bot/config
func (h *BotHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body botConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config body")
		return
	}

	cfg := bot.Config{
		Market:             body.Market,
		SpreadPercentage:   body.SpreadPercentage,
		OrderSize:          body.OrderSize,
		PriceMoveThreshold: body.PriceMoveThreshold,
	}
	var err error
	if cfg.RefreshInterval, err = time.ParseDuration(body.RefreshInterval); err != nil {
		writeError(w, http.StatusBadRequest, "invalid refreshInterval")
		return
	}
	if body.PriceStalenessMax != "" {
		if cfg.PriceStalenessMax, err = time.ParseDuration(body.PriceStalenessMax); err != nil {
			writeError(w, http.StatusBadRequest, "invalid priceStalenessMax")
			return
		}
	}

	if err := h.engine.UpdateConfig(cfg); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configToBody(h.engine.Config()))
}

// Logs returns the engine's recent log entries, newest first.
// GET /api/bot/logs?limit=100
func (h *BotHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.logs.Recent(limit))
}

// ClearLogs discards the retained log entries.
// DELETE /api/bot/logs
func (h *BotHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.logs.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
