package handler

import (
	"net/http"
	"time"

	"github.com/quantfell/perpcaster/internal/broadcast"
	"github.com/quantfell/perpcaster/internal/cache"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	cache     *cache.SnapshotCache
	hub       *broadcast.Hub
	startedAt time.Time
}

func NewHealthHandler(snap *cache.SnapshotCache, hub *broadcast.Hub) *HealthHandler {
	return &HealthHandler{cache: snap, hub: hub, startedAt: time.Now().UTC()}
}

// HealthCheck reports process liveness, whether the snapshot cache has
// completed its first full poll, and the current subscriber count.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"cacheInitialized": h.cache.Initialized(),
		"subscribers":      h.hub.Stats().ActiveClients,
		"uptimeSeconds":    int64(time.Since(h.startedAt).Seconds()),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
