// Package handler implements the HTTP API handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quantfell/perpcaster/internal/domain"
)

// writeJSON marshals v and writes it with the given status. A marshal
// failure degrades to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses and writes
// the response.
func writeDomainError(w http.ResponseWriter, err error) {
	var rejected *domain.RejectedError
	switch {
	case errors.Is(err, domain.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, "account snapshot not initialized yet")
	case errors.Is(err, domain.ErrExchangeUnavailable):
		writeError(w, http.StatusBadGateway, "exchange unavailable")
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":          "exchange rejected request",
			"exchangeStatus": rejected.Status,
			"exchangeBody":   rejected.Body,
		})
	case errors.Is(err, domain.ErrSigningFailed):
		writeError(w, http.StatusInternalServerError, "order signing failed")
	case errors.Is(err, domain.ErrConfigLocked):
		writeError(w, http.StatusConflict, "bot config is locked while running")
	case errors.Is(err, domain.ErrBotAlreadyRunning):
		writeError(w, http.StatusConflict, "bot already running")
	case errors.Is(err, domain.ErrBotNotRunning):
		writeError(w, http.StatusConflict, "bot not running")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
