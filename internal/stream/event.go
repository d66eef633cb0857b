// Package stream implements the streaming event pipeline: the event union,
// the SSE encoder, the intermediate-step collector, the driver that runs a
// generation invocation in the background, and the session loop that drains
// events to the transport.
package stream

import (
	"context"

	"github.com/shadowseller/insights-api/internal/usage"
)

// EventType tags the event union.
type EventType string

const (
	EventContent        EventType = "content"
	EventFunctionCall   EventType = "function_call"
	EventFunctionResult EventType = "function_result"
	EventIntermediate   EventType = "intermediate"
	EventThreadInfo     EventType = "thread_info"
	EventTokenUsage     EventType = "token_usage"
	EventStreamComplete EventType = "stream_complete"
	EventError          EventType = "error"
)

// Event is one element of the ordered stream delivered to the client.
// Exactly one of StreamComplete or Error terminates every stream and
// nothing follows a terminal event.
type Event struct {
	Type EventType

	// Content carries narration text for content and intermediate events.
	Content string

	// FunctionName, Arguments and Result carry tool traffic.
	FunctionName string
	Arguments    any
	Result       any

	// ConversationID is set on thread_info and token_usage events.
	ConversationID string

	// Usage carries cumulative totals on token_usage events.
	Usage usage.Record

	// Err carries the failure description on error events.
	Err string
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventStreamComplete || e.Type == EventError
}

// Request describes one stream invocation.
type Request struct {
	// ConversationID may be empty; the backend then mints one and reveals
	// it on the first fragment.
	ConversationID string

	// Query is the full, context-enriched user message.
	Query string

	// ExtraInstructions is appended to the agent's instructions verbatim.
	ExtraInstructions string
}

// Fragment is one incremental unit of backend output. ConversationID is
// populated by the backend adapter from whatever the real backend exposes,
// so the driver never probes for it.
type Fragment struct {
	Content        string
	Usage          *usage.Record
	Metadata       map[string]any
	ConversationID string
}

// StepKind tags side-channel sub-events raised during generation.
type StepKind string

const (
	StepToolCall   StepKind = "tool_call"
	StepToolResult StepKind = "tool_result"
	StepOther      StepKind = "other"
)

// StepEvent is one side-channel sub-event from the generation step.
type StepEvent struct {
	Kind      StepKind
	ToolName  string
	Arguments any
	Result    any

	// Raw is the string form of an unrecognized sub-event.
	Raw string
}

// Backend drives one generation invocation, calling onFragment per fragment
// and onStep per side-channel sub-event. Both callbacks are invoked from the
// backend's goroutine; an error returned from onFragment aborts the
// invocation.
type Backend interface {
	InvokeStreaming(ctx context.Context, req Request, onFragment func(Fragment) error, onStep func(StepEvent)) error
}

// UsageReconciler is optionally implemented by backends that hold an
// authoritative usage record for the finished run, consulted only when the
// stream itself reported none.
type UsageReconciler interface {
	FinalUsage(ctx context.Context, conversationID string) (usage.Record, bool)
}
