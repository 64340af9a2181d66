package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/metrics"
)

// Embedder turns text into a vector. OpenAIClient satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorSearcher implements ContextSearcher: it embeds the query and
// queries a hosted vector index over HTTP.
type VectorSearcher struct {
	embedder Embedder
	indexURL string
	apiKey   string
	topK     int
	client   *http.Client
	logger   zerolog.Logger
}

// NewVectorSearcher builds a searcher against the given index endpoint.
func NewVectorSearcher(embedder Embedder, indexURL, apiKey string, topK int, logger zerolog.Logger) *VectorSearcher {
	if topK <= 0 {
		topK = 2
	}
	return &VectorSearcher{
		embedder: embedder,
		indexURL: indexURL,
		apiKey:   apiKey,
		topK:     topK,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

type vectorQuery struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type vectorQueryResponse struct {
	Matches []struct {
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

// Search embeds the query and returns the best matches from the index.
func (s *VectorSearcher) Search(ctx context.Context, query string) ([]ContextMatch, error) {
	if s.indexURL == "" {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body, err := json.Marshal(vectorQuery{
		Vector:          vector,
		TopK:            s.topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal vector query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.indexURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build vector query: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("search").Inc()
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamFailures.WithLabelValues("search").Inc()
		return nil, fmt.Errorf("%w: vector index returned %d", ErrRequest, resp.StatusCode)
	}

	var decoded vectorQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode vector response: %w", err)
	}

	matches := make([]ContextMatch, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		match := ContextMatch{Score: m.Score, Metadata: m.Metadata}
		if text, ok := m.Metadata["text"]; ok {
			match.Text = text
		}
		matches = append(matches, match)
	}

	return matches, nil
}
