package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateQuery validates a user query.
func ValidateQuery(query string) error {
	if len(strings.TrimSpace(query)) == 0 {
		return errors.New("query cannot be empty")
	}
	if len(query) > 100000 { // ~100KB limit
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(query) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID. Minted ids carry a
// "conv_" prefix over a UUID; bare UUIDs from older clients are accepted.
func ValidateConversationID(id string) error {
	raw := strings.TrimPrefix(id, "conv_")
	if _, err := uuid.Parse(raw); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateInstructions validates additional instructions appended to the prompt.
func ValidateInstructions(instructions string) error {
	if len(instructions) > 10000 {
		return errors.New("instructions exceed maximum length")
	}
	if !utf8.ValidString(instructions) {
		return errors.New("instructions must be valid UTF-8")
	}
	return nil
}
