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

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// TavilyBackend searches the web via the Tavily API. Tavily's own AI answer
// is disabled; only raw page results are used.
type TavilyBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxResults int
}

// TavilyOption configures a TavilyBackend.
type TavilyOption func(*TavilyBackend)

// WithAPIKey sets the API key.
func WithAPIKey(key string) TavilyOption {
	return func(t *TavilyBackend) {
		t.apiKey = key
	}
}

// WithBaseURL overrides the search endpoint.
func WithBaseURL(url string) TavilyOption {
	return func(t *TavilyBackend) {
		if url != "" {
			t.baseURL = url
		}
	}
}

// WithMaxResults sets the maximum search results to request.
func WithMaxResults(max int) TavilyOption {
	return func(t *TavilyBackend) {
		if max > 0 {
			t.maxResults = max
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) TavilyOption {
	return func(t *TavilyBackend) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// NewTavilyBackend creates a new Tavily-backed search backend.
func NewTavilyBackend(opts ...TavilyOption) *TavilyBackend {
	t := &TavilyBackend{
		baseURL: DefaultTavilyURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the backend identifier.
func (t *TavilyBackend) Name() string {
	return "tavily"
}

// Available returns true if the API key is configured.
func (t *TavilyBackend) Available() bool {
	return t.apiKey != ""
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

// Search queries Tavily. A non-2xx response is an *adapter.AdapterError
// carrying the status so callers can tell rate limits from bad keys.
func (t *TavilyBackend) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !t.Available() {
		return nil, fmt.Errorf("tavily API key not configured")
	}
	if limit <= 0 || limit > t.maxResults {
		limit = t.maxResults
	}

	body, err := json.Marshal(tavilyRequest{
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: false,
		MaxResults:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &adapter.AdapterError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("tavily API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(tr.Results) > limit {
		tr.Results = tr.Results[:limit]
	}
	return tr.Results, nil
}
