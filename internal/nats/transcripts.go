package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/shadowseller/insights-api/internal/history"
)

const (
	// StreamName is the name of the transcripts stream.
	StreamName = "INSIGHT_TRANSCRIPTS"

	// SubjectPrefix is the prefix for all transcript subjects.
	SubjectPrefix = "insights"
)

// TranscriptStore is a history.Store backed by a JetStream stream, giving
// conversation transcripts durability across restarts.
type TranscriptStore struct {
	client *Client
}

// NewTranscriptStore creates a transcript store over an established client.
func NewTranscriptStore(client *Client) *TranscriptStore {
	return &TranscriptStore{client: client}
}

var _ history.Store = (*TranscriptStore)(nil)

// EnsureStream ensures the transcripts stream exists with proper configuration.
func (s *TranscriptStore) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Insight agent conversation transcripts",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// messageSubject returns the subject for one transcript turn.
func messageSubject(conversationID, role string) string {
	return fmt.Sprintf("%s.conv.%s.msg.%s", SubjectPrefix, conversationID, role)
}

// conversationFilter returns the filter subject for all turns of a conversation.
func conversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.conv.%s.msg.>", SubjectPrefix, conversationID)
}

// Append publishes one transcript turn.
func (s *TranscriptStore) Append(ctx context.Context, msg history.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript turn: %w", err)
	}

	_, err = s.client.JetStream().Publish(ctx, messageSubject(msg.ConversationID, msg.Role), data)
	if err != nil {
		return fmt.Errorf("failed to publish transcript turn: %w", err)
	}
	return nil
}

// fetchBatchSize is how many stored turns one Fetch pulls while walking a
// conversation to its end.
const fetchBatchSize = 100

// Recent returns up to limit most recent turns in chronological order. The
// consumer starts at the conversation's first turn, so the whole subject is
// walked and only the trailing window is kept.
func (s *TranscriptStore) Recent(ctx context.Context, conversationID string, limit int) ([]history.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	js := s.client.JetStream()
	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: conversationFilter(conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var messages []history.Message
	for {
		batch, err := consumer.Fetch(fetchBatchSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transcript: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++
			messages = appendTrimmed(messages, msg.Data(), limit)
		}
		if err := batch.Error(); err != nil && err != context.DeadlineExceeded {
			return nil, fmt.Errorf("batch error: %w", err)
		}

		// A short batch means the subject is exhausted.
		if received < fetchBatchSize {
			break
		}
	}
	return messages, nil
}

// appendTrimmed decodes one stored turn and appends it, keeping only the
// trailing limit entries. Undecodable payloads are skipped.
func appendTrimmed(messages []history.Message, data []byte, limit int) []history.Message {
	var turn history.Message
	if err := json.Unmarshal(data, &turn); err != nil {
		return messages
	}
	messages = append(messages, turn)
	if len(messages) > limit {
		messages = messages[1:]
	}
	return messages
}

// Healthy reports whether the underlying connection is up.
func (s *TranscriptStore) Healthy() bool {
	return s.client.IsConnected()
}
