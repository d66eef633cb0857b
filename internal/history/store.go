// Package history stores conversation transcripts.
package history

import (
	"context"
	"sync"
	"time"
)

// Message is one persisted transcript turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists and replays conversation transcripts. Implementations must
// be safe for concurrent use.
type Store interface {
	// Append persists one turn.
	Append(ctx context.Context, msg Message) error

	// Recent returns up to limit most recent turns in chronological order.
	Recent(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// Healthy reports whether the store is reachable.
	Healthy() bool
}

// MemoryStore is the in-process Store used for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byConv map[string][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byConv: make(map[string][]Message)}
}

// Append persists one turn.
func (s *MemoryStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg)
	return nil
}

// Recent returns up to limit most recent turns in chronological order.
func (s *MemoryStore) Recent(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.byConv[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Healthy always reports true for the in-memory store.
func (s *MemoryStore) Healthy() bool {
	return true
}
