package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shadowseller/insights-api/internal/usage"
	"github.com/shadowseller/insights-api/pkg/logger"
)

// scriptAction is one backend emission: a fragment, a sub-event, or both.
type scriptAction struct {
	fragment *Fragment
	step     *StepEvent
}

type fakeBackend struct {
	actions []scriptAction
	err     error
}

func (b *fakeBackend) InvokeStreaming(ctx context.Context, _ Request, onFragment func(Fragment) error, onStep func(StepEvent)) error {
	for _, a := range b.actions {
		if a.fragment != nil {
			if err := onFragment(*a.fragment); err != nil {
				return err
			}
		}
		if a.step != nil {
			onStep(*a.step)
		}
	}
	return b.err
}

// reconcilingBackend additionally reports an authoritative run record.
type reconcilingBackend struct {
	fakeBackend
	final     usage.Record
	consulted bool
}

func (b *reconcilingBackend) FinalUsage(_ context.Context, _ string) (usage.Record, bool) {
	b.consulted = true
	return b.final, !b.final.IsZero()
}

func drain(ch <-chan Event) []Event {
	var evs []Event
	for ev := range ch {
		evs = append(evs, ev)
	}
	return evs
}

func types(evs []Event) []EventType {
	out := make([]EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func fragment(f Fragment) scriptAction { return scriptAction{fragment: &f} }
func step(s StepEvent) scriptAction { return scriptAction{step: &s} }
func usagePtr(r usage.Record) *usage.Record { return &r }

func TestDriverHappyPathOrdering(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{actions: []scriptAction{
		fragment(Fragment{ConversationID: "conv-1", Content: "Looking"}),
		step(StepEvent{Kind: StepToolCall, ToolName: "get_sales_docs", Arguments: map[string]any{"query": "pricing"}}),
		step(StepEvent{Kind: StepToolResult, ToolName: "get_sales_docs", Result: "deck.pdf: pricing tiers"}),
		fragment(Fragment{Content: " into it.", Usage: usagePtr(usage.Record{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})}),
		fragment(Fragment{Usage: usagePtr(usage.Record{InputTokens: 165, OutputTokens: 215, TotalTokens: 380})}),
	}}

	ledger := usage.NewLedger()
	d := NewDriver(backend, ledger, logger.NewNop())

	evs := drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "pricing?"}))

	want := []EventType{
		EventThreadInfo,
		EventContent,
		EventFunctionCall,
		EventFunctionResult,
		EventContent,
		EventTokenUsage,
		EventStreamComplete,
	}
	got := types(evs)
	if len(got) != len(want) {
		t.Fatalf("event types %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d is %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}

	if evs[0].ConversationID != "conv-1" {
		t.Fatalf("thread_info id %q", evs[0].ConversationID)
	}
	tu := evs[len(evs)-2]
	if tu.Usage.InputTokens != 265 || tu.Usage.OutputTokens != 255 || tu.Usage.TotalTokens != 520 {
		t.Fatalf("token_usage %+v, want cumulative {265 255 520}", tu.Usage)
	}
	if !evs[len(evs)-1].Terminal() {
		t.Fatalf("last event is not terminal")
	}
}

func TestDriverUnknownConversationSentinel(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{actions: []scriptAction{
		fragment(Fragment{Content: "no id ever arrives"}),
	}}

	d := NewDriver(backend, usage.NewLedger(), logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{Query: "q"}))

	if evs[0].Type != EventThreadInfo || evs[0].ConversationID != "unknown" {
		t.Fatalf("first event %+v, want thread_info with sentinel id", evs[0])
	}
	for _, ev := range evs {
		if ev.Type == EventTokenUsage {
			t.Fatalf("token_usage emitted without a conversation id")
		}
	}
}

func TestDriverAdoptsLateConversationID(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{actions: []scriptAction{
		fragment(Fragment{Content: "early"}),
		fragment(Fragment{ConversationID: "conv-late", Usage: usagePtr(usage.Record{InputTokens: 5, OutputTokens: 5, TotalTokens: 10})}),
	}}

	ledger := usage.NewLedger()
	d := NewDriver(backend, ledger, logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{Query: "q"}))

	// Thread info was already flushed with the sentinel before the id arrived.
	if evs[0].ConversationID != "unknown" {
		t.Fatalf("thread_info id %q", evs[0].ConversationID)
	}
	if got := ledger.Get("conv-late"); got.TotalTokens != 10 {
		t.Fatalf("usage not recorded under adopted id: %+v", got)
	}
	tu := evs[len(evs)-2]
	if tu.Type != EventTokenUsage || tu.ConversationID != "conv-late" {
		t.Fatalf("token_usage %+v", tu)
	}
}

func TestDriverFreshConversationResetsStaleEntry(t *testing.T) {
	t.Parallel()

	ledger := usage.NewLedger()
	ledger.Record("conv-reused", usage.Record{InputTokens: 900, OutputTokens: 900, TotalTokens: 1800})

	backend := &fakeBackend{actions: []scriptAction{
		fragment(Fragment{ConversationID: "conv-reused"}),
		fragment(Fragment{Content: "hi", Usage: usagePtr(usage.Record{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})}),
	}}

	d := NewDriver(backend, ledger, logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{Query: "q"})) // empty id: a new conversation

	if got := ledger.Get("conv-reused"); got.TotalTokens != 140 {
		t.Fatalf("stale accumulation inherited: %+v", got)
	}
	tu := evs[len(evs)-2]
	if tu.Type != EventTokenUsage || tu.Usage.TotalTokens != 140 {
		t.Fatalf("token_usage %+v, want fresh 140", tu)
	}
}

func TestDriverKnownConversationKeepsAccumulating(t *testing.T) {
	t.Parallel()

	ledger := usage.NewLedger()
	ledger.Record("conv-1", usage.Record{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})

	backend := &fakeBackend{actions: []scriptAction{
		fragment(Fragment{ConversationID: "conv-1", Content: "more", Usage: usagePtr(usage.Record{InputTokens: 165, OutputTokens: 215, TotalTokens: 380})}),
	}}

	d := NewDriver(backend, ledger, logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "q"}))

	tu := evs[len(evs)-2]
	if tu.Usage.TotalTokens != 520 {
		t.Fatalf("continuing conversation total %d, want 520", tu.Usage.TotalTokens)
	}
}

func TestDriverUsageExtractionPolicy(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{actions: []scriptAction{
		// Zero total: ignored entirely.
		fragment(Fragment{ConversationID: "conv-1", Usage: usagePtr(usage.Record{})}),
		// Attached record wins over metadata; metadata must not also count.
		fragment(Fragment{
			Usage: usagePtr(usage.Record{InputTokens: 10, OutputTokens: 10, TotalTokens: 20}),
			Metadata: map[string]any{"usage": map[string]any{
				"prompt_tokens": float64(500), "completion_tokens": float64(500), "total_tokens": float64(1000),
			}},
		}),
		// Metadata fallback when no record is attached.
		fragment(Fragment{Metadata: map[string]any{"usage": map[string]any{
			"prompt_tokens": float64(3), "completion_tokens": float64(4), "total_tokens": float64(7),
		}}}),
		// Malformed metadata: ignored.
		fragment(Fragment{Metadata: map[string]any{"usage": "not a map"}}),
	}}

	ledger := usage.NewLedger()
	d := NewDriver(backend, ledger, logger.NewNop())
	drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "q"}))

	got := ledger.Get("conv-1")
	if got.InputTokens != 13 || got.OutputTokens != 14 || got.TotalTokens != 27 {
		t.Fatalf("ledger %+v, want {13 14 27}", got)
	}
}

func TestDriverReconciliationOnlyWhenNothingRecorded(t *testing.T) {
	t.Parallel()

	backend := &reconcilingBackend{
		fakeBackend: fakeBackend{actions: []scriptAction{
			fragment(Fragment{ConversationID: "conv-1", Content: "hi", Usage: usagePtr(usage.Record{InputTokens: 10, OutputTokens: 10, TotalTokens: 20})}),
		}},
		final: usage.Record{InputTokens: 10, OutputTokens: 10, TotalTokens: 20},
	}

	ledger := usage.NewLedger()
	d := NewDriver(backend, ledger, logger.NewNop())
	drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "q"}))

	if backend.consulted {
		t.Fatalf("reconciler consulted despite in-band usage")
	}
	if got := ledger.Get("conv-1"); got.TotalTokens != 20 {
		t.Fatalf("double counted: %+v", got)
	}
}

func TestDriverReconciliationFillsGap(t *testing.T) {
	t.Parallel()

	backend := &reconcilingBackend{
		fakeBackend: fakeBackend{actions: []scriptAction{
			fragment(Fragment{ConversationID: "conv-1", Content: "hi"}),
		}},
		final: usage.Record{InputTokens: 30, OutputTokens: 12, TotalTokens: 42},
	}

	ledger := usage.NewLedger()
	d := NewDriver(backend, ledger, logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "q"}))

	if !backend.consulted {
		t.Fatalf("reconciler never consulted")
	}
	tu := evs[len(evs)-2]
	if tu.Type != EventTokenUsage || tu.Usage.TotalTokens != 42 {
		t.Fatalf("token_usage %+v, want reconciled 42", tu)
	}
}

func TestDriverUsageBeforeIDLeavesReconciliationOpen(t *testing.T) {
	t.Parallel()

	// Usage arriving before any conversation id has nowhere to accumulate;
	// the run must still be reconciled once the id is known.
	backend := &reconcilingBackend{
		fakeBackend: fakeBackend{actions: []scriptAction{
			fragment(Fragment{Usage: usagePtr(usage.Record{InputTokens: 10, OutputTokens: 10, TotalTokens: 20})}),
			fragment(Fragment{ConversationID: "conv-1", Content: "hi"}),
		}},
		final: usage.Record{InputTokens: 30, OutputTokens: 12, TotalTokens: 42},
	}

	ledger := usage.NewLedger()
	d := NewDriver(backend, ledger, logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{Query: "q"}))

	if !backend.consulted {
		t.Fatalf("reconciler never consulted after orphaned usage")
	}
	tu := evs[len(evs)-2]
	if tu.Type != EventTokenUsage || tu.Usage.TotalTokens != 42 {
		t.Fatalf("token_usage %+v, want reconciled 42", tu)
	}
}

// namedBackend reports a provider name for metrics labelling.
type namedBackend struct {
	fakeBackend
	name string
}

func (b *namedBackend) Name() string { return b.name }

func TestProviderLabel(t *testing.T) {
	t.Parallel()

	if got := providerLabel(&namedBackend{name: "openai"}); got != "openai" {
		t.Fatalf("providerLabel = %q, want openai", got)
	}
	if got := providerLabel(&namedBackend{}); got != "agent" {
		t.Fatalf("empty name label = %q, want agent", got)
	}
	if got := providerLabel(&fakeBackend{}); got != "agent" {
		t.Fatalf("unnamed backend label = %q, want agent", got)
	}
}

func TestDriverWhitespaceOnlyContentSkipped(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{actions: []scriptAction{
		fragment(Fragment{ConversationID: "conv-1", Content: "   \n\t"}),
		fragment(Fragment{Content: "real"}),
	}}

	d := NewDriver(backend, usage.NewLedger(), logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "q"}))

	contents := 0
	for _, ev := range evs {
		if ev.Type == EventContent {
			contents++
		}
	}
	if contents != 1 {
		t.Fatalf("%d content events, want 1", contents)
	}
}

func TestDriverMidStreamError(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		actions: []scriptAction{
			fragment(Fragment{ConversationID: "conv-1", Content: "partial"}),
		},
		err: errors.New("provider timeout"),
	}

	d := NewDriver(backend, usage.NewLedger(), logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{ConversationID: "conv-1", Query: "q"}))

	last := evs[len(evs)-1]
	if last.Type != EventError || last.Err != "provider timeout" {
		t.Fatalf("last event %+v, want error frame", last)
	}
	for _, ev := range evs {
		if ev.Type == EventStreamComplete {
			t.Fatalf("stream_complete after error")
		}
		if ev.Type == EventTokenUsage {
			t.Fatalf("token_usage after error")
		}
	}
}

func TestDriverInitFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{err: errors.New("no provider configured")}

	d := NewDriver(backend, usage.NewLedger(), logger.NewNop())
	evs := drain(d.Drive(context.Background(), Request{Query: "q"}))

	if len(evs) != 1 || evs[0].Type != EventError {
		t.Fatalf("events %v, want a single error frame", types(evs))
	}
}

// blockingBackend emits one fragment and then parks until cancellation.
type blockingBackend struct {
	started chan struct{}
}

func (b *blockingBackend) InvokeStreaming(ctx context.Context, _ Request, onFragment func(Fragment) error, _ func(StepEvent)) error {
	if err := onFragment(Fragment{ConversationID: "conv-1", Content: "hello"}); err != nil {
		return err
	}
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestDriverCancellationProducesNoErrorFrame(t *testing.T) {
	t.Parallel()

	backend := &blockingBackend{started: make(chan struct{})}
	d := NewDriver(backend, usage.NewLedger(), logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	ch := d.Drive(ctx, Request{ConversationID: "conv-1", Query: "q"})

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("backend never started")
	}
	cancel()

	// Draining to closure proves the background goroutine exited.
	evs := drain(ch)
	for _, ev := range evs {
		if ev.Type == EventError || ev.Type == EventStreamComplete {
			t.Fatalf("terminal frame %s after cancellation", ev.Type)
		}
	}
}
