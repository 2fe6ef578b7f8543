// Package search provides the web search tool agent used by the planning
// stage.
package search

import (
	"context"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Snippet renders the result as "title (url): content".
func (r Result) Snippet() string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = r.URL
	}
	content := strings.Join(strings.Fields(r.Content), " ")
	if r.URL == "" || title == r.URL {
		return title + ": " + content
	}
	return title + " (" + r.URL + "): " + content
}

// Backend runs a web search and returns results in rank order.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// Search returns at most limit results for query.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// StaticBackend returns canned results. It serves offline runs and tests.
type StaticBackend struct {
	Results []Result
	Err     error
}

// Name returns the backend identifier.
func (b *StaticBackend) Name() string {
	return "static"
}

// Search returns the canned results, truncated to limit.
func (b *StaticBackend) Search(ctx context.Context, _ string, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.Err != nil {
		return nil, b.Err
	}
	results := b.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]Result, len(results))
	copy(out, results)
	return out, nil
}
