package handler

import (
	"net/http"

	"github.com/shadowseller/insights-api/internal/history"
	"github.com/shadowseller/insights-api/internal/usage"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store  history.Store
	ledger *usage.Ledger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store history.Store, ledger *usage.Ledger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		ledger: ledger,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.store.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "transcript store unavailable",
		})
		return
	}

	snap := h.ledger.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                "ready",
		"tracked_conversations": snap.EntryCount,
		"total_tokens":          snap.TotalTokens,
	})
}
