// Package tool defines the contract for capabilities a stage may call while
// producing its output.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
)

// Tool is a named callable offered to the model.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON schema object for the tool's arguments.
	Schema() map[string]any

	// Call executes the tool and returns text for the model.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// ToolInvocationError reports a failed tool call.
type ToolInvocationError struct {
	Tool string
	Err  error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// Policy decides what a stage does when a tool call fails.
type Policy int

const (
	// FailOpen feeds the failure back to the model as the tool result.
	FailOpen Policy = iota
	// FailClosed aborts the stage.
	FailClosed
)

func (p Policy) String() string {
	if p == FailClosed {
		return config.ToolPolicyFailClosed
	}
	return config.ToolPolicyFailOpen
}

// ParsePolicy converts a configuration value to a Policy. Empty means FailOpen.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", config.ToolPolicyFailOpen:
		return FailOpen, nil
	case config.ToolPolicyFailClosed:
		return FailClosed, nil
	default:
		return FailOpen, &config.ConfigurationError{
			Field:  "TOOL_FAILURE_POLICY",
			Reason: fmt.Sprintf("unknown policy %q", s),
		}
	}
}

// ParseArgs decodes a JSON object of tool arguments. Empty input yields an
// empty map.
func ParseArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		return map[string]any{}, nil
	}
	return args, nil
}

// Set is an ordered collection of tools with unique names.
type Set struct {
	tools  []Tool
	byName map[string]Tool
}

// NewSet builds a set, rejecting nil tools and duplicate names.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, errors.New("nil tool")
		}
		if _, ok := s.byName[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		s.byName[t.Name()] = t
		s.tools = append(s.tools, t)
	}
	return s, nil
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

// Tools returns the tools in declaration order.
func (s *Set) Tools() []Tool {
	if s == nil {
		return nil
	}
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Lookup finds a tool by name.
func (s *Set) Lookup(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byName[name]
	return t, ok
}

// Specs describes the tools for an adapter request.
func (s *Set) Specs() []adapter.ToolSpec {
	if s == nil {
		return nil
	}
	specs := make([]adapter.ToolSpec, len(s.tools))
	for i, t := range s.tools {
		specs[i] = adapter.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()}
	}
	return specs
}

// Invoke runs the tool a model asked for. Every failure, including an
// unknown tool or malformed arguments, is a *ToolInvocationError.
func (s *Set) Invoke(ctx context.Context, call adapter.ToolCall) (string, error) {
	t, ok := s.Lookup(call.Name)
	if !ok {
		return "", &ToolInvocationError{Tool: call.Name, Err: errors.New("unknown tool")}
	}
	args, err := ParseArgs(call.Arguments)
	if err != nil {
		return "", &ToolInvocationError{Tool: call.Name, Err: err}
	}
	out, err := t.Call(ctx, args)
	if err != nil {
		return "", &ToolInvocationError{Tool: call.Name, Err: err}
	}
	return out, nil
}

// Func adapts a function to the Tool interface.
type Func struct {
	ToolName        string
	ToolDescription string
	Parameters      map[string]any
	Fn              func(ctx context.Context, args map[string]any) (string, error)
}

func (f *Func) Name() string { return f.ToolName }

func (f *Func) Description() string { return f.ToolDescription }

func (f *Func) Schema() map[string]any {
	if f.Parameters == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return f.Parameters
}

func (f *Func) Call(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}
