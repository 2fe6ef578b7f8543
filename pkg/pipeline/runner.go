package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/agent"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/evidence"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/runctx"
)

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID        string
	evidenceDir  string
	logger       func(format string, args ...any)
	observer     Observer
	pricing      config.PricingConfig
	maxBudgetUSD float64
	provider     string
}

// WithRunID sets the run identifier. A random UUID is used otherwise.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithEvidence writes a run record, stage records and stage outputs under
// dir/<run-id>.
func WithEvidence(dir string) RunOption {
	return func(o *runOptions) { o.evidenceDir = dir }
}

// WithLogger sets a printf-style progress callback.
func WithLogger(logger func(format string, args ...any)) RunOption {
	return func(o *runOptions) { o.logger = logger }
}

// WithObserver registers a callback for state transitions.
func WithObserver(obs Observer) RunOption {
	return func(o *runOptions) { o.observer = obs }
}

// WithPricing enables cost estimates for stages whose provider and model
// have a pricing entry.
func WithPricing(pricing config.PricingConfig) RunOption {
	return func(o *runOptions) { o.pricing = pricing }
}

// WithBudget stops the run before a stage once the estimated spend reaches,
// or is projected to pass, maxUSD. Zero disables the check.
func WithBudget(maxUSD float64) RunOption {
	return func(o *runOptions) { o.maxBudgetUSD = maxUSD }
}

// WithProvider records the configured provider in the run evidence.
func WithProvider(provider string) RunOption {
	return func(o *runOptions) { o.provider = provider }
}

// StageReport summarizes one executed stage.
type StageReport struct {
	Index      int
	Name       string
	OutputKey  string
	Adapter    string
	Model      string
	Usage      adapter.Usage
	Cost       adapter.Cost
	ToolCalls  int
	ToolErrors []string
	Retries    int
	Duration   time.Duration
	Err        error
}

// Result is the outcome of a run. On failure it holds everything produced
// before the failing stage.
type Result struct {
	RunID       string
	Task        string
	State       State
	Stage       int
	Context     *runctx.Context
	Stages      []StageReport
	Usage       adapter.Usage
	Cost        *evidence.RunCostReport
	EvidenceDir string
	Duration    time.Duration
}

// Output returns the text stored under key.
func (r *Result) Output(key string) (string, bool) {
	if r == nil || r.Context == nil {
		return "", false
	}
	return r.Context.Get(key)
}

// StageError identifies the stage a run failed in.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type run struct {
	p       *Pipeline
	opts    runOptions
	result  *Result
	writer  *evidence.Writer
	tracker *costTracker
	start   time.Time
}

// Run executes the stages in order against a fresh run context seeded with
// task. Stages never overlap. The first failure stops the run; the returned
// Result is non-nil and carries the partial context alongside a *StageError.
func (p *Pipeline) Run(ctx context.Context, task string, opts ...RunOption) (*Result, error) {
	r := &run{p: p, start: time.Now()}
	for _, opt := range opts {
		opt(&r.opts)
	}
	if r.opts.runID == "" {
		r.opts.runID = uuid.NewString()
	}

	if r.opts.evidenceDir != "" {
		writer, err := evidence.NewWriter(r.opts.evidenceDir, r.opts.runID)
		if err != nil {
			return nil, fmt.Errorf("prepare evidence: %w", err)
		}
		r.writer = writer
	}
	r.tracker = newCostTracker(r.opts.pricing, r.opts.maxBudgetUSD)

	r.result = &Result{
		RunID:   r.opts.runID,
		Task:    task,
		State:   NotStarted,
		Stage:   -1,
		Context: runctx.New(task),
	}
	if r.writer != nil {
		r.result.EvidenceDir = r.writer.RunDir()
	}
	r.notify(nil)

	for i, st := range p.stages {
		if err := r.runStage(ctx, i, st); err != nil {
			return r.fail(i, st, err)
		}
	}

	r.result.State = Completed
	r.finish(nil)
	r.notify(nil)
	r.logf("run %s completed: %d stages", r.opts.runID, len(p.stages))
	return r.result, nil
}

func (r *run) runStage(ctx context.Context, i int, st *agent.Agent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.tracker.checkBudget(st.Adapter(), st.ModelID()); err != nil {
		return err
	}

	r.result.State = Running
	r.result.Stage = i
	r.notify(nil)
	r.logf("[%d/%d] %s -> %s", i+1, len(r.p.stages), st.Name(), st.OutputKey())

	slog.Info("stage started", "run_id", r.opts.runID, "index", i, "stage", st.Name())
	res, err := st.ExecuteDetailed(ctx, r.result.Context)

	report := StageReport{
		Index:     i,
		Name:      st.Name(),
		OutputKey: st.OutputKey(),
		Adapter:   st.Adapter(),
		Model:     st.ModelID(),
		Err:       err,
	}
	call := adapter.CallReport{Stage: st.Name(), Adapter: report.Adapter, Model: report.Model}
	if res != nil {
		report.Usage = res.Usage
		report.ToolCalls = res.ToolCalls
		report.ToolErrors = res.ToolErrors
		report.Retries = res.Retries
		report.Duration = res.Duration
		if res.Artifact != nil && res.Artifact.Model != "" {
			report.Model = res.Artifact.Model
		}
		call.Model = report.Model
		call.Usage = res.Usage
		call.Retries = res.Retries
		call.ToolCalls = res.ToolCalls
	}
	if err != nil {
		call.Error = err.Error()
	}
	call = r.tracker.record(call)
	report.Cost = call.Cost

	if err == nil {
		err = r.result.Context.Set(res.Key, res.Text)
		report.Err = err
	}

	r.result.Stages = append(r.result.Stages, report)
	r.result.Usage = r.result.Usage.Add(report.Usage)
	r.writeStage(report, res)

	if err != nil {
		return err
	}
	slog.Info("stage completed",
		"run_id", r.opts.runID,
		"index", i,
		"stage", st.Name(),
		"output_key", st.OutputKey(),
		"tool_calls", report.ToolCalls,
		"duration", report.Duration)
	return nil
}

func (r *run) fail(i int, st *agent.Agent, cause error) (*Result, error) {
	stageErr := &StageError{Index: i, Stage: st.Name(), Err: cause}
	r.result.State = Failed
	r.result.Stage = i
	slog.Error("stage failed", "run_id", r.opts.runID, "index", i, "stage", st.Name(), "error", cause)
	r.logf("stage %s failed: %v", st.Name(), cause)
	r.finish(stageErr)
	r.notify(cause)
	return r.result, stageErr
}

func (r *run) finish(runErr *StageError) {
	r.result.Duration = time.Since(r.start)
	r.result.Cost = r.tracker.report()
	if r.writer == nil {
		return
	}

	record := evidence.RunRecord{
		ID:             r.opts.runID,
		Timestamp:      r.start.UTC(),
		Pipeline:       r.p.name,
		TaskHash:       evidence.HashString(r.result.Task),
		Provider:       r.opts.provider,
		State:          r.result.State.String(),
		OutputKeys:     r.result.Context.Keys(),
		DurationMillis: r.result.Duration.Milliseconds(),
		Cost:           r.result.Cost,
		ToolVersions:   map[string]string{"go": runtime.Version()},
	}
	if len(r.p.stages) > 0 {
		record.Model = r.p.stages[0].ModelID()
	}
	if runErr != nil {
		record.FailedStage = runErr.Stage
		record.Error = runErr.Err.Error()
	}
	if err := r.writer.WriteRun(record); err != nil {
		slog.Error("write run evidence", "run_id", r.opts.runID, "error", err)
	}
}

func (r *run) writeStage(report StageReport, res *agent.Result) {
	if r.writer == nil {
		return
	}
	record := evidence.StageRecord{
		Index:          report.Index,
		Name:           report.Name,
		OutputKey:      report.OutputKey,
		Adapter:        report.Adapter,
		Model:          report.Model,
		ToolCalls:      report.ToolCalls,
		ToolErrors:     report.ToolErrors,
		Usage:          report.Usage,
		Cost:           report.Cost,
		Retries:        report.Retries,
		DurationMillis: report.Duration.Milliseconds(),
	}
	if report.Err != nil {
		record.Error = report.Err.Error()
	}
	if res != nil {
		ref, sha, err := r.writer.WriteBlob("prompt", []byte(res.System))
		if err != nil {
			slog.Error("write prompt blob", "stage", report.Name, "error", err)
		}
		record.PromptRef, record.PromptHash = ref, sha
		if report.Err == nil {
			record.Output = res.Text
			record.OutputHash = evidence.HashString(res.Text)
			if err := r.writer.WriteOutput(res.Key, res.Text); err != nil {
				slog.Error("write stage output", "stage", report.Name, "error", err)
			}
		}
	}
	if err := r.writer.WriteStage(record); err != nil {
		slog.Error("write stage evidence", "stage", report.Name, "error", err)
	}
}

func (r *run) notify(err error) {
	if r.opts.observer == nil {
		return
	}
	ev := Event{RunID: r.opts.runID, State: r.result.State, Index: r.result.Stage, Err: err}
	if r.result.Stage >= 0 && r.result.Stage < len(r.p.stages) {
		ev.Stage = r.p.stages[r.result.Stage].Name()
	}
	r.opts.observer(ev)
}

func (r *run) logf(format string, args ...any) {
	if r.opts.logger != nil {
		r.opts.logger(format, args...)
	}
}
