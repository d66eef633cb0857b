// Package model defines request and response bodies for the insights API.
package model

import "github.com/shadowseller/insights-api/internal/usage"

// InsightRequest is the body of POST /api/v1/insights/stream.
//
// ConversationID may be empty on the first turn of a new conversation; the
// generation backend mints one and it is reported back through the stream's
// thread_info event.
type InsightRequest struct {
	Query                  string `json:"query"`
	ConversationID         string `json:"conversationId"`
	DemandStage            string `json:"demandStage,omitempty"`
	AccountName            string `json:"accountName,omitempty"`
	AccountID              string `json:"accountId,omitempty"`
	ClientName             string `json:"clientName,omitempty"`
	ClientID               string `json:"clientId,omitempty"`
	PursuitID              string `json:"pursuitId,omitempty"`
	AdditionalInstructions string `json:"additionalInstructions,omitempty"`
}

// UsageStats is the body of GET /api/v1/usage/stats.
type UsageStats struct {
	EntryCount    int                     `json:"entry_count"`
	TotalTokens   int64                   `json:"total_tokens"`
	Conversations map[string]usage.Record `json:"conversations"`
}
