package adapter

import (
	"context"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Complete runs one completion, including any tool-call rounds the
	// model requests, and returns the final text as an artifact.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of known models.
	Models() []string
}

// Request is a single completion request. System carries the stage
// description and resolved instruction; Prompt carries the user's task.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64

	// Tools are offered to the model. Invoke must be set when Tools is
	// non-empty; MaxToolRounds bounds the number of tool-call rounds.
	Tools         []ToolSpec
	Invoke        ToolFunc
	MaxToolRounds int
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters  map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolFunc executes a tool call and returns the text fed back to the model.
type ToolFunc func(ctx context.Context, call ToolCall) (string, error)

func (r *Request) toolsEnabled() bool {
	return len(r.Tools) > 0 && r.Invoke != nil && r.MaxToolRounds > 0
}

func (r *Request) maxTokens() int64 {
	if r.MaxTokens > 0 {
		return int64(r.MaxTokens)
	}
	return 4096
}

// schemaParts splits a JSON schema object into its properties and required
// field list.
func schemaParts(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}

func objectSchema(schema map[string]any) map[string]any {
	props, required := schemaParts(schema)
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}
