// Package usage maintains the cumulative token ledger keyed by conversation.
package usage

import (
	"sync"
	"time"
)

// Record holds cumulative token counts for one conversation.
type Record struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// IsZero reports whether the record carries no usage.
func (r Record) IsZero() bool {
	return r.TotalTokens == 0 && r.InputTokens == 0 && r.OutputTokens == 0
}

type entry struct {
	record     Record
	lastAccess time.Time
}

// Ledger accumulates token usage per conversation with last-access
// timestamps and age-based eviction. It is safe for concurrent use and is
// the only state shared across requests; construct one in main and pass it
// by handle.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Record adds delta to the conversation's cumulative record and refreshes
// its last-access time, creating the entry if absent. An empty conversation
// id is a no-op. Returns the new cumulative value.
func (l *Ledger) Record(conversationID string, delta Record) Record {
	if conversationID == "" {
		return Record{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[conversationID]
	if !ok {
		e = &entry{}
		l.entries[conversationID] = e
	}
	e.record.InputTokens += delta.InputTokens
	e.record.OutputTokens += delta.OutputTokens
	e.record.TotalTokens += delta.TotalTokens
	e.lastAccess = l.now()

	return e.record
}

// Get returns the conversation's cumulative record, refreshing its
// last-access time; reads count as activity. Absent conversations yield a
// zero record.
func (l *Ledger) Get(conversationID string) Record {
	if conversationID == "" {
		return Record{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[conversationID]
	if !ok {
		return Record{}
	}
	e.lastAccess = l.now()
	return e.record
}

// Reset deletes the conversation's entry entirely. Used when a request
// declares a brand-new conversation so a backend-assigned id that collides
// with a stale one does not inherit its accumulation.
func (l *Ledger) Reset(conversationID string) {
	if conversationID == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, conversationID)
}

// EvictOlderThan removes every entry whose last access predates the cutoff
// and returns how many were removed. Callers invoke it opportunistically;
// staleness is bounded by call frequency, not wall clock.
func (l *Ledger) EvictOlderThan(maxAge time.Duration) int {
	cutoff := l.now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, id)
			evicted++
		}
	}
	return evicted
}

// Snapshot is a read-only aggregate of the ledger for observability.
type Snapshot struct {
	EntryCount      int
	TotalTokens     int64
	PerConversation map[string]Record
}

// Snapshot returns the current aggregate without touching access times.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		EntryCount:      len(l.entries),
		PerConversation: make(map[string]Record, len(l.entries)),
	}
	for id, e := range l.entries {
		snap.PerConversation[id] = e.record
		snap.TotalTokens += int64(e.record.TotalTokens)
	}
	return snap
}

// Len reports the number of tracked conversations.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
