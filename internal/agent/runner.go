package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shadowseller/insights-api/internal/history"
	"github.com/shadowseller/insights-api/internal/llm"
	"github.com/shadowseller/insights-api/internal/stream"
	"github.com/shadowseller/insights-api/internal/usage"
	"github.com/shadowseller/insights-api/pkg/logger"
)

const (
	// maxToolRounds bounds how many tool-call rounds one invocation may
	// take before the conversation is forced to conclude.
	maxToolRounds = 8

	// historyWindow is how many prior turns are replayed into the prompt.
	historyWindow = 50

	// lastRunRetention bounds how long an unclaimed run record is kept for
	// reconciliation before it is pruned.
	lastRunRetention = time.Hour
)

// Runner drives multi-round, tool-augmented completions. It implements
// stream.Backend: text deltas become fragments, tool traffic goes through
// the side channel, and the conversation id is revealed on the first
// fragment (minted here when the request carried none).
type Runner struct {
	llm       llm.Client
	tools     *Registry
	store     history.Store
	logger    *logger.Logger
	model     string
	maxTokens int

	mu      sync.Mutex
	lastRun map[string]lastRunEntry
	now     func() time.Time
}

// lastRunEntry is one finished run's usage, timestamped for pruning.
type lastRunEntry struct {
	record usage.Record
	at     time.Time
}

// NewRunner creates a runner over a provider, tool registry and transcript store.
func NewRunner(client llm.Client, tools *Registry, store history.Store, log *logger.Logger, model string, maxTokens int) *Runner {
	return &Runner{
		llm:       client,
		tools:     tools,
		store:     store,
		logger:    log,
		model:     model,
		maxTokens: maxTokens,
		lastRun:   make(map[string]lastRunEntry),
		now:       time.Now,
	}
}

var (
	_ stream.Backend         = (*Runner)(nil)
	_ stream.UsageReconciler = (*Runner)(nil)
)

// Name reports the underlying provider, used to label stream metrics.
func (r *Runner) Name() string {
	return r.llm.Name()
}

// InvokeStreaming runs one invocation to completion.
func (r *Runner) InvokeStreaming(ctx context.Context, req stream.Request, onFragment func(stream.Fragment) error, onStep func(stream.StepEvent)) error {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = "conv_" + uuid.Must(uuid.NewV7()).String()
	}

	// Reveal the conversation id before any content.
	if err := onFragment(stream.Fragment{ConversationID: conversationID}); err != nil {
		return err
	}

	instructions := Instructions
	if req.ExtraInstructions != "" {
		instructions += "\n\n<additional_instructions>" + req.ExtraInstructions + "</additional_instructions>"
	}

	messages := []llm.ChatMessage{{Role: "system", Content: instructions}}
	prior, err := r.store.Recent(ctx, conversationID, historyWindow)
	if err != nil {
		r.logger.Warn("failed to load transcript, continuing without history",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	for _, turn := range prior {
		messages = append(messages, llm.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: req.Query})
	r.appendTurn(ctx, conversationID, "user", req.Query)

	var defs []llm.ToolDefinition
	if r.llm.SupportsTools() {
		defs = r.tools.Definitions()
	} else if len(r.tools.Definitions()) > 0 {
		r.logger.Warn("provider does not support tools, running without retrieval",
			zap.String("provider", r.llm.Name()),
		)
	}

	var runUsage usage.Record
	var final string

	for round := 0; round < maxToolRounds; round++ {
		resp, err := r.llm.CompleteStream(ctx, &llm.CompletionRequest{
			Model:     r.model,
			Messages:  messages,
			Tools:     defs,
			MaxTokens: r.maxTokens,
		}, func(token string, _ int) error {
			return onFragment(stream.Fragment{Content: token, ConversationID: conversationID})
		})
		if err != nil {
			return err
		}

		if resp.Usage.TotalTokens > 0 {
			rec := usage.Record{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}
			runUsage.InputTokens += rec.InputTokens
			runUsage.OutputTokens += rec.OutputTokens
			runUsage.TotalTokens += rec.TotalTokens
			if err := onFragment(stream.Fragment{Usage: &rec, ConversationID: conversationID}); err != nil {
				return err
			}
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			onStep(stream.StepEvent{
				Kind:      stream.StepToolCall,
				ToolName:  call.Name,
				Arguments: parseArguments(call.Arguments),
			})

			result := r.tools.Invoke(ctx, call.Name, call.Arguments)

			onStep(stream.StepEvent{
				Kind:     stream.StepToolResult,
				ToolName: call.Name,
				Result:   result,
			})
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	if final != "" {
		r.appendTurn(ctx, conversationID, "assistant", final)
	}

	r.mu.Lock()
	now := r.now()
	// Prune run records never claimed through FinalUsage so the map stays
	// bounded in a long-lived process.
	for id, e := range r.lastRun {
		if now.Sub(e.at) > lastRunRetention {
			delete(r.lastRun, id)
		}
	}
	r.lastRun[conversationID] = lastRunEntry{record: runUsage, at: now}
	r.mu.Unlock()

	return nil
}

// FinalUsage reports the last finished run's usage as the reconciliation
// source for streams that observed none in-band. The record is only
// meaningful for the run that just finished, so it is consumed on read.
func (r *Runner) FinalUsage(_ context.Context, conversationID string) (usage.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lastRun[conversationID]
	if ok {
		delete(r.lastRun, conversationID)
	}
	return e.record, ok
}

func (r *Runner) appendTurn(ctx context.Context, conversationID, role, content string) {
	err := r.store.Append(ctx, history.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		r.logger.Warn("failed to persist transcript turn",
			zap.String("conversation_id", conversationID),
			zap.String("role", role),
			zap.Error(err),
		)
	}
}

// parseArguments decodes tool-call argument JSON for the side channel;
// undecodable payloads pass through as their raw string.
func parseArguments(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}
