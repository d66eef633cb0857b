// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StreamDuration tracks end-to-end insight stream duration.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_stream_duration_seconds",
			Help:    "Insight stream duration from dispatch to terminal event",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "status"},
	)

	// TokensTotal tracks LLM tokens attributed to streams.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// RetrievalRequestsTotal tracks document retrieval calls by corpus.
	RetrievalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_requests_total",
			Help: "Total document retrieval requests",
		},
		[]string{"corpus", "status"},
	)

	// ToolCallsTotal tracks tool invocations raised during generation.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total tool calls raised by the generation backend",
		},
		[]string{"tool"},
	)

	// LedgerEntries tracks conversations currently held in the usage ledger.
	LedgerEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usage_ledger_entries",
			Help: "Conversations tracked in the usage ledger",
		},
	)

	// LedgerTokens tracks total tokens across all ledger entries.
	LedgerTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usage_ledger_tokens_total",
			Help: "Total tokens across all usage ledger entries",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStream records metrics for a completed insight stream.
func RecordStream(provider, status string, duration float64, tokensIn, tokensOut int) {
	StreamDuration.WithLabelValues(provider, status).Observe(duration)
	TokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	TokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordLedger publishes the latest ledger snapshot totals.
func RecordLedger(entries int, totalTokens int64) {
	LedgerEntries.Set(float64(entries))
	LedgerTokens.Set(float64(totalTokens))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
