// Package agent implements a stage agent: one model call, guided by a
// templated instruction, that produces the text stored under the stage's
// output key.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/artifact"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/instruction"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/runctx"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/tool"
)

const defaultMaxToolRounds = 5

// Config describes a stage agent.
type Config struct {
	Name        string
	Description string
	Instruction string
	OutputKey   string
	Tools       []tool.Tool

	Model       adapter.Adapter
	ModelID     string
	MaxTokens   int
	Temperature *float64

	ToolPolicy    tool.Policy
	MaxToolRounds int
}

// Agent is an immutable stage agent.
type Agent struct {
	name        string
	description string
	template    *instruction.Template
	outputKey   string
	tools       *tool.Set

	model       adapter.Adapter
	modelID     string
	maxTokens   int
	temperature *float64

	policy        tool.Policy
	maxToolRounds int
}

// ValidationError reports an invalid agent definition.
type ValidationError struct {
	Agent  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Agent == "" {
		return "invalid agent: " + e.Reason
	}
	return fmt.Sprintf("invalid agent %s: %s", e.Agent, e.Reason)
}

// Result is the outcome of one stage execution.
type Result struct {
	Key        string
	Text       string
	// System is the description and resolved instruction sent to the model.
	System     string
	Artifact   *artifact.Artifact
	Usage      adapter.Usage
	ToolCalls  int
	ToolErrors []string
	Retries    int
	Duration   time.Duration
}

// New validates cfg and builds an agent.
func New(cfg Config) (*Agent, error) {
	if !instruction.IsIdentifier(cfg.Name) {
		return nil, &ValidationError{Agent: cfg.Name, Reason: fmt.Sprintf("name %q is not an identifier", cfg.Name)}
	}
	if !instruction.IsIdentifier(cfg.OutputKey) {
		return nil, &ValidationError{Agent: cfg.Name, Reason: fmt.Sprintf("output key %q is not an identifier", cfg.OutputKey)}
	}
	if cfg.Model == nil {
		return nil, &ValidationError{Agent: cfg.Name, Reason: "model adapter is required"}
	}
	tpl, err := instruction.Parse(cfg.Instruction)
	if err != nil {
		return nil, &ValidationError{Agent: cfg.Name, Reason: err.Error()}
	}
	tools, err := tool.NewSet(cfg.Tools...)
	if err != nil {
		return nil, &ValidationError{Agent: cfg.Name, Reason: err.Error()}
	}

	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}
	return &Agent{
		name:          cfg.Name,
		description:   cfg.Description,
		template:      tpl,
		outputKey:     cfg.OutputKey,
		tools:         tools,
		model:         cfg.Model,
		modelID:       cfg.ModelID,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		policy:        cfg.ToolPolicy,
		maxToolRounds: rounds,
	}, nil
}

func (a *Agent) Name() string { return a.name }

func (a *Agent) Description() string { return a.description }

func (a *Agent) Instruction() string { return a.template.Raw() }

func (a *Agent) OutputKey() string { return a.outputKey }

func (a *Agent) ModelID() string { return a.modelID }

// Adapter returns the name of the model adapter.
func (a *Agent) Adapter() string { return a.model.Name() }

// References returns the outputs this agent reads, as declared by its
// instruction placeholders.
func (a *Agent) References() []instruction.Reference {
	return a.template.References()
}

// Tools returns the agent's tools in declaration order.
func (a *Agent) Tools() []tool.Tool {
	return a.tools.Tools()
}

// Execute runs the agent against rc and returns its output key and text.
// It never writes to rc.
func (a *Agent) Execute(ctx context.Context, rc *runctx.Context) (string, string, error) {
	res, err := a.ExecuteDetailed(ctx, rc)
	if err != nil {
		return "", "", err
	}
	return res.Key, res.Text, nil
}

// ExecuteDetailed is Execute with usage and tool accounting. When the model
// call fails the returned Result still carries the prompt and tool errors.
func (a *Agent) ExecuteDetailed(ctx context.Context, rc *runctx.Context) (*Result, error) {
	start := time.Now()

	resolved, err := a.template.Render(rc.Get)
	if err != nil {
		return nil, err
	}

	req := &adapter.Request{
		Model:       a.modelID,
		System:      a.systemPrompt(resolved),
		Prompt:      rc.Task(),
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}

	var (
		mu       sync.Mutex
		toolErrs []string
	)
	if a.tools.Len() > 0 {
		req.Tools = a.tools.Specs()
		req.MaxToolRounds = a.maxToolRounds
		req.Invoke = func(ctx context.Context, call adapter.ToolCall) (string, error) {
			out, err := a.tools.Invoke(ctx, call)
			if err == nil {
				return out, nil
			}
			slog.Warn("tool invocation failed",
				"stage", a.name, "tool", call.Name, "policy", a.policy.String(), "error", err)
			mu.Lock()
			toolErrs = append(toolErrs, err.Error())
			mu.Unlock()
			if a.policy == tool.FailClosed {
				return "", err
			}
			return "error: " + err.Error(), nil
		}
	}

	resp, err := a.model.Complete(ctx, req)
	if err != nil {
		return &Result{
			Key:        a.outputKey,
			System:     req.System,
			ToolErrors: toolErrs,
			Duration:   time.Since(start),
		}, err
	}

	art := resp.Artifact.WithKey(a.outputKey).WithMetadata("stage", a.name)
	return &Result{
		Key:        a.outputKey,
		Text:       art.Content,
		System:     req.System,
		Artifact:   art,
		Usage:      resp.Usage,
		ToolCalls:  resp.ToolCalls,
		ToolErrors: toolErrs,
		Retries:    resp.Retries,
		Duration:   time.Since(start),
	}, nil
}

func (a *Agent) systemPrompt(resolved string) string {
	desc := strings.TrimSpace(a.description)
	if desc == "" {
		return resolved
	}
	return desc + "\n\n" + resolved
}
