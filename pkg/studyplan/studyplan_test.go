package studyplan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/pipeline"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/search"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/tool"
)

const task = "Learn basic Python loops."

func staticSearch() *search.StaticBackend {
	return &search.StaticBackend{Results: []search.Result{
		{Title: "Python for loops", URL: "https://docs.python.org/3/tutorial/controlflow.html", Content: "for iterates over a sequence."},
		{Title: "While loops", URL: "https://example.com/while", Content: "while repeats while a condition holds."},
	}}
}

func mockModel() *adapter.MockAdapter {
	model := adapter.NewMockAdapterWithResponses(map[string]string{
		"planning and research agent": "PLAN: for and while loops",
		"study content creation agent": "CONTENT: loop lessons",
		"quiz generation agent":        "QUIZ: 5 questions",
		"reviewer agent":               "REVIEW: add nested loops",
	}, "")
	model.ToolCalls = []adapter.ToolCall{{ID: "call-1", Name: "google_search", Arguments: `{"request":"python loops"}`}}
	return model
}

func TestManifestStages(t *testing.T) {
	m, err := Manifest()
	require.NoError(t, err)

	assert.Equal(t, "root_agent", m.Name)
	require.Len(t, m.Stages, 4)

	names := make([]string, len(m.Stages))
	keys := make([]string, len(m.Stages))
	for i, st := range m.Stages {
		names[i] = st.Name
		keys[i] = st.OutputKey
	}
	assert.Equal(t, []string{"planner_research_agent", "content_agent", "quiz_agent", "reviewer_agent"}, names)
	assert.Equal(t, OutputKeys(), keys)

	assert.Equal(t, []string{search.DefaultName}, m.Stages[0].Tools)
	for _, st := range m.Stages[1:] {
		assert.Empty(t, st.Tools, st.Name)
	}

	tm, ok := m.Tool(search.DefaultName)
	require.True(t, ok)
	assert.Equal(t, search.DefaultDescription, tm.Description)
	assert.Equal(t, search.DefaultInstruction, tm.Instruction)

	assert.Contains(t, m.Stages[3].Instruction, "{{quiz_agent.quiz_output}}")
}

func TestRunProducesStudyPlan(t *testing.T) {
	model := mockModel()
	p, err := New(Deps{Model: model, ModelID: "mock-1", Search: staticSearch()})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, res.State)
	assert.Equal(t, OutputKeys(), res.Context.Keys())

	research, _ := res.Output(ResearchOutput)
	assert.True(t, strings.HasPrefix(research, "PLAN: for and while loops"))
	assert.Contains(t, research, "1. Python for loops (https://docs.python.org/3/tutorial/controlflow.html): for iterates over a sequence.")
	assert.Equal(t, 1, res.Stages[0].ToolCalls)

	reqs := model.Requests()
	require.Len(t, reqs, 4)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, search.DefaultName, reqs[0].Tools[0].Name)
	for _, req := range reqs[1:] {
		assert.Empty(t, req.Tools)
	}

	reviewer := reqs[3].System
	assert.True(t, strings.HasPrefix(reviewer, "Checks if plan and quizzes cover the original request and suggests tweaks.\n\n"))
	assert.Contains(t, reviewer, "Plan:\n"+research+"\nContent:\nCONTENT: loop lessons\nQuizzes:\nQUIZ: 5 questions\n")
	for _, req := range reqs {
		assert.Equal(t, task, req.Prompt)
	}
}

func TestSearchFailureFailOpen(t *testing.T) {
	model := mockModel()
	backend := &search.StaticBackend{Err: errors.New("quota exceeded")}
	p, err := New(Deps{Model: model, ModelID: "mock-1", Search: backend, ToolPolicy: tool.FailOpen})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), task)
	require.NoError(t, err)
	research, _ := res.Output(ResearchOutput)
	assert.Contains(t, research, "error: ")
	assert.Len(t, res.Stages[0].ToolErrors, 1)
	assert.Len(t, res.Context.Keys(), 4)
}

func TestSearchFailureFailClosed(t *testing.T) {
	model := mockModel()
	backend := &search.StaticBackend{Err: errors.New("quota exceeded")}
	p, err := New(Deps{Model: model, ModelID: "mock-1", Search: backend, ToolPolicy: tool.FailClosed})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), task)
	var toolErr *tool.ToolInvocationError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, search.DefaultName, toolErr.Tool)

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 0, stageErr.Index)
	assert.Equal(t, 0, res.Context.Len())
}

type rateLimitedBackend struct {
	calls int
}

func (b *rateLimitedBackend) Name() string { return "rate-limited" }

func (b *rateLimitedBackend) Search(context.Context, string, int) ([]search.Result, error) {
	b.calls++
	return nil, &adapter.AdapterError{Status: 429, Err: errors.New("rate limited")}
}

func TestFailClosedSearchIsNotRetried(t *testing.T) {
	model := mockModel()
	backend := &rateLimitedBackend{}
	retrying := adapter.WithRetry(model, config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 1, MaxBackoffMs: 1})
	p, err := New(Deps{Model: retrying, ModelID: "mock-1", Search: backend, ToolPolicy: tool.FailClosed})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), task)
	var toolErr *tool.ToolInvocationError
	require.ErrorAs(t, err, &toolErr)
	assert.False(t, adapter.IsTransient(err))

	assert.Equal(t, 1, backend.calls)
	assert.Len(t, model.Requests(), 1)
	require.Len(t, res.Stages, 1)
	assert.Len(t, res.Stages[0].ToolErrors, 1)
	assert.Equal(t, 0, res.Stages[0].Retries)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{Model: mockModel()})
	var vErr *pipeline.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = New(Deps{Search: staticSearch()})
	require.ErrorAs(t, err, &vErr)
}
