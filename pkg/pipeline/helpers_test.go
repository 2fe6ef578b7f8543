package pipeline

import (
	"testing"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/agent"
)

type stageDef struct {
	name, instruction, key string
}

func buildStages(t *testing.T, model adapter.Adapter, defs ...stageDef) []*agent.Agent {
	t.Helper()
	stages := make([]*agent.Agent, 0, len(defs))
	for _, d := range defs {
		st, err := agent.New(agent.Config{
			Name:        d.name,
			Description: "stage " + d.name,
			Instruction: d.instruction,
			OutputKey:   d.key,
			Model:       model,
			ModelID:     "mock-1",
		})
		if err != nil {
			t.Fatalf("build stage %s: %v", d.name, err)
		}
		stages = append(stages, st)
	}
	return stages
}

var studyStages = []stageDef{
	{"planner_research_agent", "Plan the study of the task.", "research_output"},
	{"content_agent", "Write content for {{planner_research_agent.research_output}}", "content_output"},
	{"quiz_agent", "Write a quiz for {{content_agent.content_output}}", "quiz_output"},
	{"reviewer_agent", "Review {{planner_research_agent.research_output}} {{content_agent.content_output}} {{quiz_agent.quiz_output}}", "review_output"},
}
