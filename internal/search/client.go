// Package search provides hybrid document retrieval against Azure AI Search.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shadowseller/insights-api/pkg/logger"
	"github.com/shadowseller/insights-api/pkg/metrics"
)

// NoResults is the sentinel returned when a query matches nothing.
const NoResults = "No results found."

const apiVersion = "2025-05-01-Preview"

// Embedder produces embedding vectors for hybrid queries.
type Embedder interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// Config holds the settings for one corpus index.
type Config struct {
	Endpoint   string
	APIKey     string
	Index      string
	Corpus     string // label used in logs and metrics
	EmbedModel string
	TopK       int
}

// Client performs hybrid (keyword + vector) search against one index.
type Client struct {
	cfg      Config
	embedder Embedder
	http     *http.Client
	logger   *logger.Logger
}

// NewClient creates a search client for one corpus index.
func NewClient(cfg Config, embedder Embedder, log *logger.Logger) *Client {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Client{
		cfg:      cfg,
		embedder: embedder,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   log,
	}
}

// Corpus returns the corpus label.
func (c *Client) Corpus() string {
	return c.cfg.Corpus
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type searchPayload struct {
	Search        string        `json:"search"`
	VectorQueries []vectorQuery `json:"vectorQueries"`
	Filter        string        `json:"filter,omitempty"`
	Select        string        `json:"select"`
	Top           int           `json:"top"`
}

type searchDocument struct {
	Title            string `json:"title"`
	OriginalFilename string `json:"OriginalFilename"`
	Chunk            string `json:"chunk"`
}

type searchResponse struct {
	Value []searchDocument `json:"value"`
}

// Search runs a hybrid query, optionally filtered to one field value, and
// returns matches as newline-joined "title: excerpt" lines or NoResults.
func (c *Client) Search(ctx context.Context, query, filterField, filterValue string) (string, error) {
	text := query
	if filterValue != "" {
		text = query + " " + filterValue
	}

	vector, err := c.embedder.Embed(ctx, strings.ReplaceAll(text, "\n", " "), c.cfg.EmbedModel)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(c.cfg.Corpus, "error").Inc()
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	payload := searchPayload{
		Search: text,
		VectorQueries: []vectorQuery{{
			Kind:   "vector",
			Vector: vector,
			K:      c.cfg.TopK,
			Fields: "text_vector",
		}},
		Select: "title,OriginalFilename,chunk",
		Top:    c.cfg.TopK,
	}
	if filterField != "" && filterValue != "" {
		payload.Filter = fmt.Sprintf("%s eq '%s'", filterField, strings.ReplaceAll(filterValue, "'", "''"))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search payload: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.cfg.Endpoint, c.cfg.Index, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(c.cfg.Corpus, "error").Inc()
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("search request rejected",
			zap.String("corpus", c.cfg.Corpus),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("detail", detail),
		)
		metrics.RetrievalRequestsTotal.WithLabelValues(c.cfg.Corpus, "error").Inc()
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(c.cfg.Corpus, "error").Inc()
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	metrics.RetrievalRequestsTotal.WithLabelValues(c.cfg.Corpus, "ok").Inc()

	if len(result.Value) == 0 {
		return NoResults, nil
	}

	lines := make([]string, 0, len(result.Value))
	for _, doc := range result.Value {
		title := doc.OriginalFilename
		if title == "" {
			title = doc.Title
		}
		lines = append(lines, title+": "+cleanText(doc.Chunk))
	}
	return strings.Join(lines, "\n"), nil
}

// cleanText collapses runs of whitespace so excerpts stay single-line.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
