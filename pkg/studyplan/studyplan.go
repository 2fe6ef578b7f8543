// Package studyplan defines the study plan pipeline: a planner that
// researches the task with web search, followed by content, quiz and review
// stages that build on each other's output.
package studyplan

import (
	_ "embed"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/pipeline"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/search"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/tool"
)

//go:embed studyplan.yaml
var manifestYAML []byte

// Output keys, in the order the stages write them.
const (
	ResearchOutput = "research_output"
	ContentOutput  = "content_output"
	QuizOutput     = "quiz_output"
	ReviewOutput   = "review_output"
)

// OutputKeys returns the keys a completed run holds.
func OutputKeys() []string {
	return []string{ResearchOutput, ContentOutput, QuizOutput, ReviewOutput}
}

// Deps are the collaborators the pipeline is built with. Model and Search
// are required.
type Deps struct {
	Model       adapter.Adapter
	ModelID     string
	Search      search.Backend
	// SearchLimit caps snippets per search; zero keeps the agent default.
	SearchLimit int

	ToolPolicy    tool.Policy
	MaxToolRounds int
	MaxTokens     int
	Temperature   *float64
}

// Manifest returns the embedded pipeline definition.
func Manifest() (*pipeline.Manifest, error) {
	return pipeline.ParseManifest(manifestYAML)
}

// ManifestYAML returns the raw embedded definition.
func ManifestYAML() []byte {
	return append([]byte(nil), manifestYAML...)
}

// New builds the study plan pipeline.
func New(deps Deps) (*pipeline.Pipeline, error) {
	m, err := Manifest()
	if err != nil {
		return nil, err
	}
	return Build(m, deps)
}

// Build binds m to deps, registering every tool the manifest declares as a
// search agent over deps.Search.
func Build(m *pipeline.Manifest, deps Deps) (*pipeline.Pipeline, error) {
	if deps.Search == nil && len(m.Tools) > 0 {
		return nil, &pipeline.ValidationError{Pipeline: m.Name, Reason: "search backend is required"}
	}

	tools := make(map[string]tool.Tool, len(m.Tools))
	for _, tm := range m.Tools {
		sa, err := search.NewAgent(deps.Search,
			search.WithName(tm.Name),
			search.WithDescription(tm.Description),
			search.WithInstruction(tm.Instruction),
			search.WithLimit(deps.SearchLimit),
		)
		if err != nil {
			return nil, err
		}
		tools[sa.Name()] = sa.AsTool()
	}

	return m.Build(pipeline.Deps{
		Model:         deps.Model,
		ModelID:       deps.ModelID,
		Tools:         tools,
		ToolPolicy:    deps.ToolPolicy,
		MaxToolRounds: deps.MaxToolRounds,
		MaxTokens:     deps.MaxTokens,
		Temperature:   deps.Temperature,
	})
}
