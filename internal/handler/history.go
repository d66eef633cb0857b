package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shadowseller/insights-api/internal/history"
	"github.com/shadowseller/insights-api/internal/middleware"
	"github.com/shadowseller/insights-api/pkg/logger"
)

const defaultMessageLimit = 50

// HistoryHandler serves stored conversation transcripts.
type HistoryHandler struct {
	store  history.Store
	logger *logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store history.Store, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: log,
	}
}

// Messages handles GET /api/v1/conversations/{id}/messages
// Supports ?limit=N, capped at 200.
func (h *HistoryHandler) Messages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	messages, err := h.store.Recent(r.Context(), conversationID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []history.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        messages,
		"count":           len(messages),
	})
}
