package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/tool"
)

const (
	// DefaultName is the tool name stages refer to.
	DefaultName = "google_search"
	// DefaultDescription tells the model what the tool is for.
	DefaultDescription = "A tool to search the web for relevant information."
	// DefaultInstruction tells the model when to call the tool.
	DefaultInstruction = "Use this tool to search for information on the web to assist with study planning and research tasks."

	defaultLimit = 5
)

// ErrEmptyQuery is returned when a search is requested without a query.
var ErrEmptyQuery = errors.New("search query is empty")

// Agent answers search requests from stage agents with ranked text snippets.
// It keeps no state between calls.
type Agent struct {
	name        string
	description string
	instruction string
	backend     Backend
	limit       int
}

// Option configures an Agent.
type Option func(*Agent)

// WithName overrides the tool name.
func WithName(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.name = name
		}
	}
}

// WithDescription overrides the description.
func WithDescription(d string) Option {
	return func(a *Agent) {
		if d != "" {
			a.description = d
		}
	}
}

// WithInstruction overrides the usage instruction.
func WithInstruction(i string) Option {
	return func(a *Agent) {
		if i != "" {
			a.instruction = i
		}
	}
}

// WithLimit sets the number of snippets returned per search.
func WithLimit(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.limit = n
		}
	}
}

// NewAgent creates a search agent over backend.
func NewAgent(backend Backend, opts ...Option) (*Agent, error) {
	if backend == nil {
		return nil, errors.New("search backend is required")
	}
	a := &Agent{
		name:        DefaultName,
		description: DefaultDescription,
		instruction: DefaultInstruction,
		backend:     backend,
		limit:       defaultLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Agent) Name() string { return a.name }

func (a *Agent) Description() string { return a.description }

func (a *Agent) Instruction() string { return a.instruction }

// Search returns snippets for query in backend rank order.
func (a *Agent) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	results, err := a.backend.Search(ctx, query, a.limit)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", a.backend.Name(), err)
	}
	slog.Debug("search completed", "tool", a.name, "backend", a.backend.Name(), "query", query, "results", len(results))

	snippets := make([]string, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, r.Snippet())
	}
	return snippets, nil
}

// AsTool exposes the agent as a tool taking a single "request" argument.
func (a *Agent) AsTool() tool.Tool {
	return &agentTool{agent: a}
}

type agentTool struct {
	agent *Agent
}

func (t *agentTool) Name() string {
	return t.agent.name
}

func (t *agentTool) Description() string {
	return t.agent.description + " " + t.agent.instruction
}

func (t *agentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "What to search the web for.",
			},
		},
		"required": []string{"request"},
	}
}

func (t *agentTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["request"].(string)
	snippets, err := t.agent.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(snippets) == 0 {
		return "no results", nil
	}

	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s)
	}
	return b.String(), nil
}
