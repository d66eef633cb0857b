package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shadowseller/insights-api/internal/llm"
	"github.com/shadowseller/insights-api/internal/search"
)

// Tool is one capability exposed to the model. Invoke never fails: every
// internal error is converted into a descriptive string result so a bad
// retrieval degrades the answer's context instead of aborting the turn.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Invoke      func(ctx context.Context, args map[string]any) string
}

// Registry holds the agent's tools in a stable order.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry creates a registry from the given tools.
func NewRegistry(tools ...Tool) *Registry {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Registry{tools: tools, byName: byName}
}

// Definitions returns the tool definitions for a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Invoke dispatches one tool call. Argument JSON that fails to parse and
// unknown tool names produce string results, never errors.
func (r *Registry) Invoke(ctx context.Context, name, argumentsJSON string) string {
	tool, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("Tool %q is not available.", name)
	}

	args := map[string]any{}
	if strings.TrimSpace(argumentsJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			return fmt.Sprintf("Input error: could not parse arguments for %s: %v", name, err)
		}
	}

	return tool.Invoke(ctx, args)
}

// Searcher is the retrieval capability behind each tool.
type Searcher interface {
	Search(ctx context.Context, query, filterField, filterValue string) (string, error)
}

// NewRetrievalTools builds the three corpus retrieval tools over their
// search clients.
func NewRetrievalTools(sales, account, client Searcher) []Tool {
	return []Tool{
		{
			Name:        "get_sales_docs",
			Description: "Given a user query determine if the users request involves sales strategy or methodology.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The query from the user."}
				},
				"required": ["query"]
			}`),
			Invoke: func(ctx context.Context, args map[string]any) string {
				query := stringArg(args, "query")
				if query == "" {
					return "Input error: the query must be a non-empty string."
				}
				docs, err := sales.Search(ctx, query, "", "")
				if err != nil {
					return fmt.Sprintf("An error occurred while retrieving documents from the sales index: %v", err)
				}
				if docs == "" {
					return "No relevant documents found in the sales index."
				}
				return docs
			},
		},
		{
			Name:        "get_customer_docs",
			Description: "Given a user query determine if the users request involves a customer / prospect AccountName.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The query and the AccountName provided by the user."},
					"account_name": {"type": "string", "description": "The name of the customer / prospect account."}
				},
				"required": ["query", "account_name"]
			}`),
			Invoke: func(ctx context.Context, args map[string]any) string {
				query := stringArg(args, "query")
				if query == "" {
					return "Input error: the query must be a non-empty string."
				}
				docs, err := account.Search(ctx, query, "AccountName", stringArg(args, "account_name"))
				if err != nil {
					return fmt.Sprintf("An error occurred while retrieving documents from the customer index: %v", err)
				}
				if docs == "" {
					return "No relevant documents found in the customer index."
				}
				return docs
			},
		},
		{
			Name:        "get_user_docs",
			Description: "Given a user query determine if the users request involves the user-company also referred to as the ClientName.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The query and the name of the user-company (ClientName)."},
					"client_name": {"type": "string", "description": "The name of the company the user represents."}
				},
				"required": ["query", "client_name"]
			}`),
			Invoke: func(ctx context.Context, args map[string]any) string {
				query := stringArg(args, "query")
				if query == "" {
					return "Input error: the query must be a non-empty string."
				}
				docs, err := client.Search(ctx, query, "ClientName", stringArg(args, "client_name"))
				if err != nil {
					return fmt.Sprintf("An error occurred while retrieving documents from the user index: %v", err)
				}
				if docs == "" {
					return "No relevant documents found in the user index."
				}
				return docs
			},
		},
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

var _ Searcher = (*search.Client)(nil)
