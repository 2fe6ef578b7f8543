// Package pipeline runs an ordered list of stage agents, threading each
// stage's output to later stages through a shared run context.
package pipeline

import (
	"fmt"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/agent"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/instruction"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/runctx"
)

// Pipeline is a validated, immutable sequence of stages.
type Pipeline struct {
	name        string
	description string
	stages      []*agent.Agent
}

// ValidationError reports a structurally invalid pipeline.
type ValidationError struct {
	Pipeline string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pipeline %s: %s", e.Pipeline, e.Reason)
}

// New builds a pipeline and validates it before returning.
func New(name, description string, stages ...*agent.Agent) (*Pipeline, error) {
	p := &Pipeline{
		name:        name,
		description: description,
		stages:      append([]*agent.Agent(nil), stages...),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Description() string { return p.description }

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []*agent.Agent {
	return append([]*agent.Agent(nil), p.stages...)
}

// OutputKeys returns every stage's output key in execution order.
func (p *Pipeline) OutputKeys() []string {
	keys := make([]string, len(p.stages))
	for i, st := range p.stages {
		keys[i] = st.OutputKey()
	}
	return keys
}

// Validate checks that stage names and output keys are unique and that
// every instruction placeholder names a strictly earlier stage together
// with the key that stage writes.
func (p *Pipeline) Validate() error {
	if p.name == "" {
		return &ValidationError{Pipeline: p.name, Reason: "name is required"}
	}
	if len(p.stages) == 0 {
		return &ValidationError{Pipeline: p.name, Reason: "at least one stage is required"}
	}

	// stage name -> output key, for stages declared so far
	earlier := make(map[string]string, len(p.stages))
	keys := make(map[string]bool, len(p.stages))

	for i, st := range p.stages {
		if st == nil {
			return &ValidationError{Pipeline: p.name, Reason: fmt.Sprintf("stage %d is nil", i)}
		}
		if _, dup := earlier[st.Name()]; dup {
			return &ValidationError{Pipeline: p.name, Reason: fmt.Sprintf("duplicate stage name %s", st.Name())}
		}
		if keys[st.OutputKey()] {
			return &runctx.DuplicateOutputKeyError{Key: st.OutputKey()}
		}

		for _, ref := range st.References() {
			key, ok := earlier[ref.Stage]
			if !ok || key != ref.Key {
				return &instruction.UnresolvedReferenceError{Stage: ref.Stage, Key: ref.Key}
			}
		}

		earlier[st.Name()] = st.OutputKey()
		keys[st.OutputKey()] = true
	}
	return nil
}
