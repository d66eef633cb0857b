package handler

import (
	"net/http"
	"time"

	"github.com/shadowseller/insights-api/internal/model"
	"github.com/shadowseller/insights-api/internal/usage"
	"github.com/shadowseller/insights-api/pkg/metrics"
)

// StatsHandler exposes aggregate token accounting.
type StatsHandler struct {
	ledger    *usage.Ledger
	retention time.Duration
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(ledger *usage.Ledger, retention time.Duration) *StatsHandler {
	return &StatsHandler{
		ledger:    ledger,
		retention: retention,
	}
}

// Stats handles GET /api/v1/usage/stats
// Stale conversations are evicted before the snapshot is taken.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.ledger.EvictOlderThan(h.retention)

	snap := h.ledger.Snapshot()
	metrics.RecordLedger(snap.EntryCount, snap.TotalTokens)

	writeJSON(w, http.StatusOK, model.UsageStats{
		EntryCount:    snap.EntryCount,
		TotalTokens:   snap.TotalTokens,
		Conversations: snap.PerConversation,
	})
}
