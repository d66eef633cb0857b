package agent

import (
	"strings"

	"github.com/shadowseller/insights-api/internal/model"
)

// BuildUserMessage combines the request's query with its context fields
// into the single user turn handed to the generation backend.
func BuildUserMessage(req *model.InsightRequest) string {
	var parts []string
	if req.AccountName != "" {
		parts = append(parts, "AccountName: "+req.AccountName)
	}
	if req.ClientName != "" {
		parts = append(parts, "ClientName: "+req.ClientName)
	}
	if req.DemandStage != "" {
		parts = append(parts, "Demand Stage: "+req.DemandStage)
	}

	if len(parts) == 0 {
		return req.Query
	}

	var b strings.Builder
	b.WriteString(req.Query)
	b.WriteString("\n\nContext:\n")
	for _, part := range parts {
		b.WriteString("- ")
		b.WriteString(part)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
