package pipeline

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/agent"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/tool"
)

// Manifest is the YAML form of a pipeline.
type Manifest struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Tools       []ToolManifest  `yaml:"tools,omitempty"`
	Stages      []StageManifest `yaml:"stages"`
}

// ToolManifest describes a tool agent that stages may reference by name.
type ToolManifest struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Instruction string `yaml:"instruction,omitempty"`
}

// StageManifest describes one stage agent.
type StageManifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Instruction string   `yaml:"instruction"`
	Tools       []string `yaml:"tools,omitempty"`
	OutputKey   string   `yaml:"output_key"`
	// Model overrides Deps.ModelID for this stage.
	Model       string   `yaml:"model,omitempty"`
}

// Deps are the runtime collaborators a manifest is bound to.
type Deps struct {
	Model         adapter.Adapter
	ModelID       string
	Tools         map[string]tool.Tool
	ToolPolicy    tool.Policy
	MaxToolRounds int
	MaxTokens     int
	Temperature   *float64
}

// LoadManifest reads a pipeline manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes a manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Tool returns the tool entry with the given name.
func (m *Manifest) Tool(name string) (ToolManifest, bool) {
	for _, t := range m.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolManifest{}, false
}

// Build binds the manifest to deps and returns a validated pipeline.
func (m *Manifest) Build(deps Deps) (*Pipeline, error) {
	if deps.Model == nil {
		return nil, &ValidationError{Pipeline: m.Name, Reason: "model adapter is required"}
	}

	stages := make([]*agent.Agent, 0, len(m.Stages))
	for _, sm := range m.Stages {
		tools := make([]tool.Tool, 0, len(sm.Tools))
		for _, name := range sm.Tools {
			t, ok := deps.Tools[name]
			if !ok {
				return nil, &ValidationError{
					Pipeline: m.Name,
					Reason:   fmt.Sprintf("stage %s references unknown tool %s", sm.Name, name),
				}
			}
			tools = append(tools, t)
		}

		modelID := deps.ModelID
		if sm.Model != "" {
			modelID = sm.Model
		}

		st, err := agent.New(agent.Config{
			Name:          sm.Name,
			Description:   sm.Description,
			Instruction:   sm.Instruction,
			OutputKey:     sm.OutputKey,
			Tools:         tools,
			Model:         deps.Model,
			ModelID:       modelID,
			MaxTokens:     deps.MaxTokens,
			Temperature:   deps.Temperature,
			ToolPolicy:    deps.ToolPolicy,
			MaxToolRounds: deps.MaxToolRounds,
		})
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}

	return New(m.Name, m.Description, stages...)
}
