package stream

import (
	"fmt"

	"github.com/shadowseller/insights-api/pkg/metrics"
)

// Collector adapts side-channel sub-events from the generation step into
// stream events and buffers them into the shared queue. It is the producer
// side of the queue handed to the backend; it never touches the transport.
type Collector struct {
	enqueue func(Event) bool
}

// NewCollector creates a collector that pushes through enqueue.
func NewCollector(enqueue func(Event) bool) *Collector {
	return &Collector{enqueue: enqueue}
}

// OnStep converts one sub-event. Unrecognized shapes degrade to a generic
// informational event carrying their string representation.
func (c *Collector) OnStep(step StepEvent) {
	switch step.Kind {
	case StepToolCall:
		metrics.ToolCallsTotal.WithLabelValues(step.ToolName).Inc()
		c.enqueue(Event{
			Type:         EventFunctionCall,
			FunctionName: step.ToolName,
			Arguments:    step.Arguments,
		})
	case StepToolResult:
		c.enqueue(Event{
			Type:         EventFunctionResult,
			FunctionName: step.ToolName,
			Result:       step.Result,
		})
	default:
		raw := step.Raw
		if raw == "" {
			raw = fmt.Sprintf("%v", step)
		}
		c.enqueue(Event{
			Type:    EventIntermediate,
			Content: raw,
		})
	}
}
