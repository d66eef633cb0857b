package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shadowseller/insights-api/internal/usage"
	"github.com/shadowseller/insights-api/pkg/logger"
	"github.com/shadowseller/insights-api/pkg/metrics"
)

// unknownConversation is reported on thread_info when the first fragment
// arrives before any id is known; observed ids may legitimately arrive late.
const unknownConversation = "unknown"

// defaultQueueSize bounds the shared event queue. A full buffer
// back-pressures the producer onto its context instead of growing without
// bound on a slow client.
const defaultQueueSize = 64

// Driver orchestrates one stream: it runs the generation invocation in a
// background goroutine, multiplexes fragments and side-channel sub-events
// onto one ordered queue, updates the usage ledger and emits the terminal
// event. The returned channel is closed once the background goroutine has
// fully stopped.
type Driver struct {
	backend   Backend
	ledger    *usage.Ledger
	logger    *logger.Logger
	queueSize int
}

// NewDriver creates a driver over a backend and the shared ledger.
func NewDriver(backend Backend, ledger *usage.Ledger, log *logger.Logger) *Driver {
	return &Driver{
		backend:   backend,
		ledger:    ledger,
		logger:    log,
		queueSize: defaultQueueSize,
	}
}

// Drive starts the background generation task and returns the ordered event
// queue. Cancel ctx to stop the task; the channel close is the quiescence
// signal.
func (d *Driver) Drive(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, d.queueSize)
	go d.run(ctx, req, ch)
	return ch
}

// providerLabel resolves the metrics label for a backend: its provider name
// when it reports one, a generic label otherwise.
func providerLabel(b Backend) string {
	if named, ok := b.(interface{ Name() string }); ok {
		if name := named.Name(); name != "" {
			return name
		}
	}
	return "agent"
}

func (d *Driver) run(ctx context.Context, req Request, ch chan<- Event) {
	defer close(ch)
	start := time.Now()
	provider := providerLabel(d.backend)

	enqueue := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	collector := NewCollector(enqueue)

	var (
		conversationID = req.ConversationID
		isNew          = req.ConversationID == ""
		resetDone      = false
		threadInfoSent = false
		recorded       = false
	)

	onFragment := func(f Fragment) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if conversationID == "" && f.ConversationID != "" {
			conversationID = f.ConversationID
		}

		// A freshly begun conversation must not inherit usage recorded
		// under a reused backend-assigned id; discard before the first
		// accumulation.
		if isNew && !resetDone && conversationID != "" {
			d.ledger.Reset(conversationID)
			resetDone = true
		}

		if !threadInfoSent {
			id := conversationID
			if id == "" {
				id = unknownConversation
			}
			enqueue(Event{Type: EventThreadInfo, ConversationID: id})
			threadInfoSent = true
		}

		// Usage seen before any id is known has nowhere to accumulate;
		// leaving recorded unset keeps the reconciliation fallback open.
		if delta, ok := extractUsage(f); ok && conversationID != "" {
			d.ledger.Record(conversationID, delta)
			recorded = true
		}

		if strings.TrimSpace(f.Content) != "" {
			enqueue(Event{Type: EventContent, Content: f.Content})
		}
		return nil
	}

	err := d.backend.InvokeStreaming(ctx, req, onFragment, collector.OnStep)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			// Client departure is cancellation, not an error; there is no
			// one left to receive a frame.
			d.logger.Info("stream cancelled",
				zap.String("conversation_id", conversationID),
			)
			metrics.RecordStream(provider, "cancelled", time.Since(start).Seconds(), 0, 0)
			return
		}
		d.logger.Error("stream failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		enqueue(Event{Type: EventError, Err: err.Error()})
		metrics.RecordStream(provider, "error", time.Since(start).Seconds(), 0, 0)
		return
	}

	// Best-effort reconciliation against the backend's authoritative run
	// record, only when streaming itself recorded nothing; recording twice
	// would double count the same generation step.
	if !recorded && conversationID != "" {
		if rec, ok := d.backend.(UsageReconciler); ok {
			if final, found := rec.FinalUsage(ctx, conversationID); found && final.TotalTokens > 0 {
				d.ledger.Record(conversationID, final)
			}
		}
	}

	var total usage.Record
	if conversationID != "" {
		if total = d.ledger.Get(conversationID); total.TotalTokens > 0 {
			enqueue(Event{
				Type:           EventTokenUsage,
				ConversationID: conversationID,
				Usage:          total,
			})
		}
	}

	enqueue(Event{Type: EventStreamComplete})
	metrics.RecordStream(provider, "ok", time.Since(start).Seconds(), total.InputTokens, total.OutputTokens)
}

// extractUsage applies the token-extraction policy to one fragment: the
// attached usage record first, then the generic metadata field; a source is
// accepted only when its total is strictly positive, and the first match
// wins; sources are never summed.
func extractUsage(f Fragment) (usage.Record, bool) {
	if f.Usage != nil && f.Usage.TotalTokens > 0 {
		return *f.Usage, true
	}

	if f.Metadata != nil {
		if raw, ok := f.Metadata["usage"]; ok {
			if m, ok := raw.(map[string]any); ok {
				rec := usage.Record{
					InputTokens:  intField(m, "prompt_tokens"),
					OutputTokens: intField(m, "completion_tokens"),
					TotalTokens:  intField(m, "total_tokens"),
				}
				if rec.TotalTokens > 0 {
					return rec, true
				}
			}
		}
	}

	return usage.Record{}, false
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
