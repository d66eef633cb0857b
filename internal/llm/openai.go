package llm

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the OpenAI LLM client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// SupportsTools reports tool-call support.
func (c *OpenAIClient) SupportsTools() bool {
	return true
}

// Embed returns the embedding vector for a text, used by hybrid retrieval.
func (c *OpenAIClient) Embed(ctx context.Context, text, model string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// CompleteStream runs one streaming completion step with tool support.
// Usage is requested on the final chunk via stream options rather than
// estimated from content length.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = toOpenAIMessage(msg)
	}

	var tools []openai.Tool
	for _, def := range req.Tools {
		def := def
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         model,
		Messages:      messages,
		Tools:         tools,
		MaxTokens:     maxTokens,
		Temperature:   float32(req.Temperature),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var (
		content    string
		stopReason string
		usage      Usage
		calls      []ToolCall
	)
	index := 0

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if response.Usage != nil {
			usage = Usage{
				PromptTokens:     response.Usage.PromptTokens,
				CompletionTokens: response.Usage.CompletionTokens,
				TotalTokens:      response.Usage.TotalTokens,
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if delta := choice.Delta.Content; delta != "" {
			content += delta
			if err := callback(delta, index); err != nil {
				return nil, err
			}
			index++
		}

		for _, tc := range choice.Delta.ToolCalls {
			calls = accumulateToolCall(calls, tc)
		}

		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
		}
	}

	return &CompletionResponse{
		Content:    content,
		ToolCalls:  calls,
		Model:      model,
		Usage:      usage,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func toOpenAIMessage(msg ChatMessage) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return out
}

// accumulateToolCall merges a streamed tool-call delta into the set
// collected so far. The id and name arrive on the first delta for an
// index; argument JSON arrives chunked across subsequent deltas.
func accumulateToolCall(calls []ToolCall, delta openai.ToolCall) []ToolCall {
	idx := len(calls) - 1
	if delta.Index != nil {
		idx = *delta.Index
	}
	for len(calls) <= idx {
		calls = append(calls, ToolCall{})
	}
	if idx < 0 {
		return calls
	}
	if delta.ID != "" {
		calls[idx].ID = delta.ID
	}
	if delta.Function.Name != "" {
		calls[idx].Name = delta.Function.Name
	}
	calls[idx].Arguments += delta.Function.Arguments
	return calls
}
