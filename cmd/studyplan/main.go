package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/logger"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/pipeline"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/search"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/studyplan"
	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/tool"
)

var (
	configFile   string
	logLevelFlag string
	providerFlag string
	modelFlag    string
	baseURLFlag  string
	policyFlag   string
	aliases      *config.ModelAliases
)

// offlineResults back the search tool when running against the mock provider
// without a search key.
var offlineResults = []search.Result{{
	Title:   "Offline search",
	Content: "Web search is not configured; set TAVILY_API_KEY to enable it.",
}}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "studyplan",
		Short: "Turn a study task into a plan, study material, a quiz and a review",
		Long: `Studyplan runs a fixed sequence of model-backed stages over a study task.
The planner researches the task with web search, the content stage writes
study material from the plan, the quiz stage writes questions from the
material, and the reviewer suggests improvements to all of it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.studyplan/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(stagesCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(searchCmd())

	return rootCmd
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&providerFlag, "provider", "", "model provider (overrides MODEL_PROVIDER)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model name or alias (overrides MODEL_NAME)")
	cmd.Flags().StringVar(&baseURLFlag, "base-url", "", "model endpoint (overrides BASE_URL)")
	cmd.Flags().StringVar(&policyFlag, "tool-policy", "", "tool failure policy: fail-open or fail-closed")
}

type runOutput struct {
	RunID       string            `json:"run_id"`
	State       string            `json:"state"`
	Outputs     map[string]string `json:"outputs"`
	FailedStage string            `json:"failed_stage,omitempty"`
	Error       string            `json:"error,omitempty"`
	Usage       adapter.Usage     `json:"usage"`
	CostUSD     float64           `json:"estimated_cost_usd,omitempty"`
	EvidenceDir string            `json:"evidence_dir,omitempty"`
}

func runCmd() *cobra.Command {
	var pipelineFile string
	var outFlag string
	var jsonFlag bool
	var maxBudgetUSD float64

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run the study plan pipeline on a task",
		Long: `Runs every stage in order and prints each stage's output.
The task is taken from the arguments, or from stdin when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := readTask(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if maxBudgetUSD > 0 {
				cfg.MaxBudgetUSD = maxBudgetUSD
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			p, model, err := buildPipeline(ctx, cfg, pipelineFile)
			if err != nil {
				return err
			}

			opts := []pipeline.RunOption{
				pipeline.WithLogger(func(format string, args ...any) {
					fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
				}),
				pipeline.WithPricing(cfg.Pricing),
				pipeline.WithBudget(cfg.MaxBudgetUSD),
				pipeline.WithProvider(model.Name()),
			}
			if outFlag != "" {
				opts = append(opts, pipeline.WithEvidence(outFlag))
			}

			res, runErr := p.Run(ctx, task, opts...)
			if res == nil {
				return runErr
			}

			if jsonFlag {
				if err := writeJSON(cmd.OutOrStdout(), res, runErr); err != nil {
					return err
				}
			} else {
				printOutputs(cmd.OutOrStdout(), p, res)
			}

			if runErr != nil {
				var stageErr *pipeline.StageError
				if errors.As(runErr, &stageErr) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Stage %d (%s) failed. Outputs so far: %s\n",
						stageErr.Index, stageErr.Stage, formatList(res.Context.Keys()))
				}
				return runErr
			}
			if res.EvidenceDir != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Run complete. Evidence: %s\n", res.EvidenceDir)
			}
			return nil
		},
	}

	addModelFlags(cmd)
	cmd.Flags().StringVarP(&pipelineFile, "file", "f", "", "pipeline manifest path (default: built-in study plan)")
	cmd.Flags().StringVar(&outFlag, "out", "", "evidence output base directory")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the result as JSON")
	cmd.Flags().Float64Var(&maxBudgetUSD, "max-budget-usd", 0, "maximum estimated USD spend for the run (0 disables)")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [pipeline.yaml]",
		Short: "Validate a pipeline manifest",
		Long:  "Validates stage ordering, output keys and tool references without calling a model.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			p, err := offlinePipeline(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s is valid (%d stages).\n", p.Name(), len(p.Stages()))
			return nil
		},
	}
}

func stagesCmd() *cobra.Command {
	var pipelineFile string

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := offlinePipeline(pipelineFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTAGE\tOUTPUT KEY\tREADS\tTOOLS")
			for i, st := range p.Stages() {
				var reads, tools []string
				for _, ref := range st.References() {
					reads = append(reads, ref.Key)
				}
				for _, t := range st.Tools() {
					tools = append(tools, t.Name())
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, st.Name(), st.OutputKey(), orDash(formatList(reads)), orDash(formatList(tools)))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&pipelineFile, "file", "f", "", "pipeline manifest path (default: built-in study plan)")
	return cmd
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List providers and model aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if resolveFlag {
				return showAliases(cmd.OutOrStdout())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")
			for _, provider := range config.Providers {
				probe := *cfg
				probe.Provider = provider
				status := "ready"
				if probe.RequiresAPIKey() && cfg.APIKey == "" {
					status = "no key"
				}
				if provider == cfg.Provider {
					status += " (selected: " + cfg.ModelName + ")"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, orDash(formatList(aliases.ProviderModels(provider))), status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")
	return cmd
}

func showAliases(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tPROVIDER")
	for _, alias := range aliases.ListAliases() {
		model := aliases.Resolve(alias)
		fmt.Fprintf(w, "%s\t%s\t%s\n", alias, model, orDash(aliases.ProviderForModel(model)))
	}
	return w.Flush()
}

func searchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run the web search tool directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.SearchMaxResults
			}

			sa, err := search.NewAgent(searchBackend(cfg), search.WithLimit(limit))
			if err != nil {
				return err
			}
			snippets, err := sa.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(snippets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
				return nil
			}
			for i, s := range snippets {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, s)
			}
			return nil
		},
	}

	addModelFlags(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	return cmd
}

// loadConfig loads configuration, applies command-line overrides, validates
// the result and installs the logger.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	aliases, err = config.LoadAliasesFromDir(cfg.ConfigDir)
	if err != nil {
		slog.Warn("failed to load model aliases, using defaults", "error", err)
		aliases = config.DefaultAliases()
	}

	if providerFlag != "" {
		cfg.Provider = strings.ToLower(providerFlag)
	}
	aliases.ApplyModel(cfg, modelFlag, providerFlag != "")
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if policyFlag != "" {
		cfg.ToolPolicy = strings.ToLower(policyFlag)
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "LOG_LEVEL", Reason: err.Error()}
	}
	logger.Init(level, cfg.LogFormat, os.Stderr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := aliases.ValidateModel(cfg.Provider, cfg.ModelName); err != nil {
		slog.Warn("model not listed for provider", "provider", cfg.Provider, "model", cfg.ModelName, "error", err)
	}
	return cfg, nil
}

func buildPipeline(ctx context.Context, cfg *config.Config, manifestPath string) (*pipeline.Pipeline, adapter.Adapter, error) {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return nil, nil, err
	}

	policy, err := tool.ParsePolicy(cfg.ToolPolicy)
	if err != nil {
		return nil, nil, err
	}

	model, err := adapter.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	p, err := studyplan.Build(m, studyplan.Deps{
		Model:         model,
		ModelID:       cfg.ModelName,
		Search:        searchBackend(cfg),
		SearchLimit:   cfg.SearchMaxResults,
		ToolPolicy:    policy,
		MaxToolRounds: cfg.MaxToolRounds,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, model, nil
}

// offlinePipeline builds a manifest against the mock adapter so it can be
// inspected without credentials.
func offlinePipeline(manifestPath string) (*pipeline.Pipeline, error) {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return studyplan.Build(m, studyplan.Deps{
		Model:   adapter.NewMockAdapter(),
		ModelID: "mock-1",
		Search:  &search.StaticBackend{Results: offlineResults},
	})
}

func loadManifest(path string) (*pipeline.Manifest, error) {
	if path == "" {
		return studyplan.Manifest()
	}
	return pipeline.LoadManifest(path)
}

func searchBackend(cfg *config.Config) search.Backend {
	if !cfg.HasSearch() && cfg.Provider == "mock" {
		return &search.StaticBackend{Results: offlineResults}
	}
	opts := []search.TavilyOption{
		search.WithAPIKey(cfg.SearchAPIKey),
		search.WithMaxResults(cfg.SearchMaxResults),
	}
	if cfg.SearchBaseURL != "" {
		opts = append(opts, search.WithBaseURL(cfg.SearchBaseURL))
	}
	return search.NewTavilyBackend(opts...)
}

func readTask(in io.Reader, args []string) (string, error) {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		task = strings.TrimSpace(string(data))
	}
	if task == "" {
		return "", fmt.Errorf("a study task is required")
	}
	return task, nil
}

func printOutputs(out io.Writer, p *pipeline.Pipeline, res *pipeline.Result) {
	for _, key := range p.OutputKeys() {
		text, ok := res.Output(key)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "== %s ==\n%s\n\n", key, strings.TrimSpace(text))
	}
}

func writeJSON(out io.Writer, res *pipeline.Result, runErr error) error {
	report := runOutput{
		RunID:       res.RunID,
		State:       res.State.String(),
		Outputs:     res.Context.Snapshot(),
		Usage:       res.Usage,
		EvidenceDir: res.EvidenceDir,
	}
	if res.Cost != nil {
		report.CostUSD = res.Cost.TotalAmount
	}
	if runErr != nil {
		report.Error = runErr.Error()
		var stageErr *pipeline.StageError
		if errors.As(runErr, &stageErr) {
			report.FailedStage = stageErr.Stage
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func formatList(items []string) string {
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
