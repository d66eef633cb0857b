package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/shadowseller/insights-api/internal/agent"
	"github.com/shadowseller/insights-api/internal/middleware"
	"github.com/shadowseller/insights-api/internal/model"
	"github.com/shadowseller/insights-api/internal/stream"
	"github.com/shadowseller/insights-api/pkg/logger"
	"github.com/shadowseller/insights-api/pkg/metrics"
)

// Streamer produces the event stream for one request.
type Streamer interface {
	Drive(ctx context.Context, req stream.Request) <-chan stream.Event
}

// StreamHandler handles the SSE insights endpoint.
type StreamHandler struct {
	streamer Streamer
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(streamer Streamer, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		streamer: streamer,
		logger:   log,
	}
}

// Stream handles POST /api/v1/insights/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req model.InsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := middleware.ValidateInstructions(req.AdditionalInstructions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	h.logger.Info("insight stream opened",
		zap.String("conversation_id", req.ConversationID),
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
	)

	ctx, cancel := context.WithCancel(r.Context())
	events := h.streamer.Drive(ctx, stream.Request{
		ConversationID:    req.ConversationID,
		Query:             agent.BuildUserMessage(&req),
		ExtraInstructions: req.AdditionalInstructions,
	})

	stream.NewSession(w, flusher).Run(ctx, cancel, events)
}
