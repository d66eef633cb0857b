package usage

import (
	"testing"
	"time"
)

func TestLedgerAccumulates(t *testing.T) {
	t.Parallel()

	l := NewLedger()

	got := l.Record("conv-1", Record{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})
	if got.TotalTokens != 140 {
		t.Fatalf("first record: got total %d, want 140", got.TotalTokens)
	}

	got = l.Record("conv-1", Record{InputTokens: 165, OutputTokens: 215, TotalTokens: 380})
	if got.InputTokens != 265 || got.OutputTokens != 255 || got.TotalTokens != 520 {
		t.Fatalf("accumulated record: got %+v, want {265 255 520}", got)
	}

	if got := l.Get("conv-1"); got.TotalTokens != 520 {
		t.Fatalf("Get after accumulate: got total %d, want 520", got.TotalTokens)
	}
}

func TestLedgerEmptyIDIsNoOp(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	got := l.Record("", Record{TotalTokens: 99})
	if !got.IsZero() {
		t.Fatalf("empty id record returned %+v, want zero", got)
	}
	if l.Len() != 0 {
		t.Fatalf("ledger grew to %d entries on empty id", l.Len())
	}
}

func TestLedgerGetUnknownIsZero(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	if got := l.Get("missing"); !got.IsZero() {
		t.Fatalf("Get on unknown id returned %+v, want zero", got)
	}
	if l.Len() != 0 {
		t.Fatalf("Get materialized an entry")
	}
}

func TestLedgerReset(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.Record("conv-1", Record{InputTokens: 10, OutputTokens: 5, TotalTokens: 15})
	l.Reset("conv-1")

	if got := l.Get("conv-1"); !got.IsZero() {
		t.Fatalf("after reset got %+v, want zero", got)
	}
	if l.Len() != 0 {
		t.Fatalf("reset left %d entries", l.Len())
	}
}

func TestLedgerEviction(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedger()
	l.now = func() time.Time { return clock }

	l.Record("old", Record{TotalTokens: 10, InputTokens: 6, OutputTokens: 4})

	clock = clock.Add(2 * time.Hour)
	l.Record("fresh", Record{TotalTokens: 20, InputTokens: 12, OutputTokens: 8})

	evicted := l.EvictOlderThan(time.Hour)
	if evicted != 1 {
		t.Fatalf("evicted %d entries, want 1", evicted)
	}
	if got := l.Get("old"); !got.IsZero() {
		t.Fatalf("stale entry survived eviction: %+v", got)
	}
	if got := l.Get("fresh"); got.TotalTokens != 20 {
		t.Fatalf("fresh entry lost: %+v", got)
	}
}

func TestLedgerAccessRefreshesEviction(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedger()
	l.now = func() time.Time { return clock }

	l.Record("conv-1", Record{TotalTokens: 10, InputTokens: 6, OutputTokens: 4})

	clock = clock.Add(50 * time.Minute)
	l.Get("conv-1") // refreshes last access

	clock = clock.Add(30 * time.Minute)
	if evicted := l.EvictOlderThan(time.Hour); evicted != 0 {
		t.Fatalf("evicted %d entries, want 0 after refresh", evicted)
	}
}

func TestLedgerSnapshot(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.Record("a", Record{InputTokens: 1, OutputTokens: 2, TotalTokens: 3})
	l.Record("b", Record{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})

	snap := l.Snapshot()
	if snap.EntryCount != 2 {
		t.Fatalf("snapshot entry count %d, want 2", snap.EntryCount)
	}
	if snap.TotalTokens != 33 {
		t.Fatalf("snapshot total tokens %d, want 33", snap.TotalTokens)
	}
	if snap.PerConversation["b"].OutputTokens != 20 {
		t.Fatalf("snapshot per-conversation: %+v", snap.PerConversation)
	}

	// Snapshot is a copy; mutating it must not touch the ledger.
	snap.PerConversation["a"] = Record{TotalTokens: 999}
	if got := l.Get("a"); got.TotalTokens != 3 {
		t.Fatalf("snapshot mutation leaked into ledger: %+v", got)
	}
}

func TestLedgerConcurrentRecord(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				l.Record("shared", Record{InputTokens: 1, OutputTokens: 1, TotalTokens: 2})
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if got := l.Get("shared"); got.TotalTokens != 1600 {
		t.Fatalf("concurrent total %d, want 1600", got.TotalTokens)
	}
}
