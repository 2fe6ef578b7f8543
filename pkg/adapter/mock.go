package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/artifact"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Responses are chosen by the longest key contained in the request's system
// prompt. When tools are offered and ToolCalls is set, the first round
// requests those calls and the tool output is appended to the answer.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string

	Usage     Usage
	ToolCalls []ToolCall
	// Err, when set, is returned from every call.
	Err       error

	mu       sync.Mutex
	requests []Request
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Requests returns a copy of every request received so far.
func (a *MockAdapter) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// Complete returns a deterministic artifact for the request.
func (a *MockAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	a.mu.Lock()
	a.requests = append(a.requests, *req)
	a.mu.Unlock()

	model := req.Model
	if model == "" {
		model = "mock-1"
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(a.Name(), model, 0, err)
	}
	if a.Err != nil {
		return nil, unavailable(a.Name(), model, 0, a.Err)
	}

	content := a.respond(req)
	resp := &Response{Usage: a.Usage}

	if req.toolsEnabled() && len(a.ToolCalls) > 0 {
		results, err := runToolCalls(ctx, req.Invoke, a.ToolCalls)
		if err != nil {
			return nil, err
		}
		resp.ToolCalls = len(a.ToolCalls)
		resp.Usage = resp.Usage.Add(a.Usage)
		content = fmt.Sprintf("%s\n%s", content, strings.Join(results, "\n"))
	}

	resp.Artifact = artifact.New(content, a.Name(), model, req.Prompt)
	return resp, nil
}

func (a *MockAdapter) respond(req *Request) string {
	keys := make([]string, 0, len(a.responses))
	for k := range a.responses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(req.System, k) {
			return a.responses[k]
		}
	}
	return fmt.Sprintf("%s\n%s", a.defaultResponse, req.Prompt)
}
