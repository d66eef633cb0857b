package stream

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Encode converts an event into its SSE wire frame: an event-type line, a
// JSON data line repeating the type, and a blank separator line.
func Encode(e Event) []byte {
	payload := map[string]any{"type": string(e.Type)}

	switch e.Type {
	case EventContent, EventIntermediate:
		payload["content"] = e.Content
	case EventFunctionCall:
		payload["function_name"] = e.FunctionName
		payload["arguments"] = safeValue(e.Arguments)
	case EventFunctionResult:
		payload["function_name"] = e.FunctionName
		payload["result"] = safeValue(e.Result)
	case EventThreadInfo:
		payload["conversation_id"] = e.ConversationID
	case EventTokenUsage:
		payload["conversation_id"] = e.ConversationID
		payload["input_tokens"] = e.Usage.InputTokens
		payload["output_tokens"] = e.Usage.OutputTokens
		payload["total_tokens"] = e.Usage.TotalTokens
	case EventError:
		payload["error"] = e.Err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// safeValue keeps this unreachable for tool traffic; guard the
		// remaining fields the same way rather than dropping the frame.
		for k, v := range payload {
			payload[k] = fmt.Sprintf("%v", v)
		}
		data, _ = json.Marshal(payload)
	}

	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data))
}

// safeValue coerces a value to a JSON-safe representation: primitives and
// containers pass through, everything else is stringified.
func safeValue(v any) any {
	if v == nil {
		return nil
	}

	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return v
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if _, err := json.Marshal(v); err == nil {
			return v
		}
	}

	return fmt.Sprintf("%v", v)
}
