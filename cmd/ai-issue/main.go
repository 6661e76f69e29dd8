package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jiaweitao001/ai-issue-cli/internal/agent"
	"github.com/jiaweitao001/ai-issue-cli/internal/artifact"
	"github.com/jiaweitao001/ai-issue-cli/internal/claude"
	"github.com/jiaweitao001/ai-issue-cli/internal/config"
	"github.com/jiaweitao001/ai-issue-cli/internal/env"
	"github.com/jiaweitao001/ai-issue-cli/internal/logging"
	"github.com/jiaweitao001/ai-issue-cli/internal/orchestrator"
	"github.com/jiaweitao001/ai-issue-cli/internal/pipeline"
	"github.com/jiaweitao001/ai-issue-cli/internal/prompt"
	"github.com/jiaweitao001/ai-issue-cli/internal/reporter"
	"github.com/jiaweitao001/ai-issue-cli/internal/state"
	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
	"github.com/jiaweitao001/ai-issue-cli/internal/validator"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const narrateHeadLines = 40

var (
	flagConfig      string
	flagModel       string
	flagRepo        string
	flagReports     string
	flagTemplateDir string
	flagNoEval      bool
	flagSilent      bool
	flagDebug       bool
	flagJSON        bool
	flagNarrate     bool
)

var issueIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ai-issue",
		Short: "Resolve GitHub issues with an AI coding agent",
		Long: `ai-issue researches a GitHub issue with an AI coding agent, classifies it as a
code change or a guidance question, produces a solution report and, unless
disabled, an evaluation of that report. The batch command runs many issues
under a concurrency cap.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.ai-issue/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model passed to the agent")
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "Repository path (overrides repoPath)")
	rootCmd.PersistentFlags().StringVar(&flagReports, "reports", "", "Report directory (overrides reportPath)")
	rootCmd.PersistentFlags().StringVar(&flagTemplateDir, "templates", "", "Prompt template directory (overrides templateDir)")
	rootCmd.PersistentFlags().BoolVar(&flagNoEval, "no-eval", false, "Skip the evaluation phase")
	rootCmd.PersistentFlags().BoolVar(&flagSilent, "silent", false, "Suppress progress output and agent echo")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Print debug output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&flagNarrate, "narrate", false, "Summarise a batch with Claude (needs ANTHROPIC_API_KEY)")

	rootCmd.AddCommand(solveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves defaults, the config file, .env and AI_ISSUE_*
// variables, then applies command-line flags on top.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := map[string]string{
		"model":       flagModel,
		"repoPath":    flagRepo,
		"reportPath":  flagReports,
		"templateDir": flagTemplateDir,
	}
	for _, key := range config.Keys() {
		if v := overrides[key]; v != "" {
			if err := cfg.Set(key, v); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}

func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return config.DefaultPath()
}

// requireValid returns an error listing every config problem.
func requireValid(cfg *config.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("configuration errors:")
	for _, err := range errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	b.WriteString("\nrun 'ai-issue config show' to inspect settings")
	return errors.New(b.String())
}

func newLogger() *logging.Logger {
	return logging.New(logging.WithSilent(flagSilent || flagJSON), logging.WithDebug(flagDebug))
}

// newRunner wires the agent process, templates and validator into a pipeline
// runner.
func newRunner(cfg *config.Config, log *logging.Logger) *pipeline.Runner {
	proc := agent.NewProcess(cfg.Model, cfg.RepoPath, cfg.ReportPath)
	proc.Bin = cfg.AgentBin
	proc.LogLevel = cfg.LogLevel
	if cfg.ManifestDir != "" {
		proc.Manifests = agent.DirResolver{Dir: cfg.ManifestDir, Debugf: log.Debug}
	}

	runner := pipeline.NewRunner(pipeline.Config{
		RepoPath:          cfg.RepoPath,
		ReportPath:        cfg.ReportPath,
		IssueBaseURL:      cfg.IssueBaseURL,
		ResearchTimeout:   cfg.ResearchTimeout.Duration,
		SolutionTimeout:   cfg.SolutionTimeout.Duration,
		EvaluationTimeout: cfg.EvaluationTimeout.Duration,
	}, proc, prompt.NewLoader(cfg.TemplateDir), log)
	runner.Validator = validator.Hook{}
	return runner
}

func taskOptions() pipeline.Options {
	return pipeline.Options{
		SkipEvaluation: flagNoEval,
		Silent:         flagSilent || flagJSON,
		Debug:          flagDebug,
		Model:          flagModel,
	}
}

// parseIDs strips a leading '#', rejects ids that are unsafe in file names and
// rejects duplicates, which would share artifact paths.
func parseIDs(args []string) ([]string, error) {
	seen := make(map[string]bool, len(args))
	ids := make([]string, 0, len(args))
	for _, a := range args {
		id := strings.TrimPrefix(strings.TrimSpace(a), "#")
		if !issueIDPattern.MatchString(id) {
			return nil, fmt.Errorf("invalid issue id %q", a)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate issue id %s", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Received interrupt, finishing running tasks..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func solveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve <issue-id>",
		Short: "Research, solve and evaluate one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := requireValid(cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			log := newLogger()
			runner := newRunner(cfg, log)
			ui.Banner(log.Out(), "🚀 AI Issue Resolver", ui.BoldCyan)
			log.Info("Issue: %s", runner.IssueURL(ids[0]))
			log.Info("Repository: %s", cfg.RepoPath)
			log.Info("Reports: %s", cfg.ReportPath)

			out, runErr := runner.Run(ctx, pipeline.Task{ID: ids[0], Options: taskOptions()})
			if flagJSON {
				if err := outputJSON(out); err != nil {
					return err
				}
				return runErr
			}
			if runErr != nil {
				return runErr
			}

			printOutcome(log, out)
			return nil
		},
	}
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "evaluate <issue-id>",
		Aliases: []string{"eval"},
		Short:   "Evaluate an existing solution report",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := requireValid(cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			log := newLogger()
			ui.Banner(log.Out(), "🔍 Solution Evaluation", ui.BoldCyan)
			out, runErr := newRunner(cfg, log).Evaluate(ctx, pipeline.Task{ID: ids[0], Options: taskOptions()})
			if flagJSON {
				if err := outputJSON(out); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

func batchCmd() *cobra.Command {
	var flagConcurrency int

	cmd := &cobra.Command{
		Use:   "batch <issue-id>...",
		Short: "Process many issues concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagConcurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := requireValid(cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			log := newLogger()
			opts := taskOptions()
			opts.Concurrency = flagConcurrency
			// interleaved agent output from several tasks is unreadable
			opts.Silent = true

			sched := orchestrator.New(newRunner(cfg, log), artifact.NewLayout(cfg.ReportPath), log)
			res, err := sched.Run(ctx, ids, opts)
			if err != nil {
				return err
			}

			if flagJSON {
				if err := outputJSON(res); err != nil {
					return err
				}
			} else {
				summary := reporter.PrintBatchSummary(os.Stdout, res)
				if flagNarrate {
					narrate(ctx, log, res, summary)
				}
			}

			if !res.OK() {
				return fmt.Errorf("%d of %d issues failed", len(res.Failed), res.Attempted)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&flagConcurrency, "concurrency", "c", orchestrator.DefaultConcurrency, "Max issues processed at once")
	return cmd
}

// narrate prints a Claude-written summary of the batch. Any failure is a
// warning; the batch result stands on its own.
func narrate(ctx context.Context, log *logging.Logger, res *orchestrator.Result, summary string) {
	client, err := claude.NewClient("", "")
	if err != nil {
		log.Warn("narrative summary skipped: %v", err)
		return
	}

	reports := make(map[string]string)
	for _, id := range res.Succeeded {
		out := res.Outcomes[id]
		if out == nil || out.SolutionPath == "" {
			continue
		}
		head, err := claude.ReportHead(out.SolutionPath, narrateHeadLines)
		if err != nil {
			log.Debug("read %s: %v", out.SolutionPath, err)
			continue
		}
		reports[id] = head
	}

	text, err := client.SummariseBatch(ctx, summary, reports)
	if err != nil {
		log.Warn("narrative summary failed: %v", err)
		return
	}
	ui.Banner(os.Stdout, "🧠 Batch Narrative", ui.BoldMagenta)
	fmt.Println(text)
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the agent CLI, paths and prompt templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			checks := env.Run(cmd.Context(), env.Options{
				AgentBin:   cfg.AgentBin,
				RepoPath:   cfg.RepoPath,
				ReportPath: cfg.ReportPath,
				Templates:  prompt.NewLoader(cfg.TemplateDir),
			})

			if flagJSON {
				if err := outputJSON(checks); err != nil {
					return err
				}
				if !env.AllOK(checks) {
					return fmt.Errorf("some checks failed")
				}
				return nil
			}

			if !env.Print(os.Stdout, checks) {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var flagHistory bool
	var flagRun string
	var flagLogs string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent batch run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagHistory && flagRun != "" {
				return fmt.Errorf("--history and --run are mutually exclusive")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if flagHistory {
				names, err := state.ListHistory(cfg.ReportPath)
				if err != nil {
					return err
				}
				if flagJSON {
					return outputJSON(names)
				}
				if len(names) == 0 {
					fmt.Printf("%s No archived runs.\n", ui.Dim("📭"))
					return nil
				}
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			}

			if flagLogs != "" {
				return printTaskLogs(artifact.NewLayout(cfg.ReportPath), flagLogs)
			}

			var st *state.RunState
			if flagRun != "" {
				st, err = state.LoadArchived(cfg.ReportPath, flagRun)
			} else {
				if !state.Exists(cfg.ReportPath) {
					return fmt.Errorf("no batch run found (no %s)", state.Path(cfg.ReportPath))
				}
				st, err = state.Load(cfg.ReportPath)
			}
			if err != nil {
				return err
			}

			rpt := reporter.New(st)
			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			rpt.PrintStatus(os.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagHistory, "history", false, "List archived runs")
	cmd.Flags().StringVar(&flagRun, "run", "", "Show an archived run by file name (see --history)")
	cmd.Flags().StringVar(&flagLogs, "logs", "", "Print the agent logs of one issue")
	return cmd
}

// printTaskLogs prints every per-phase agent log that exists for a task.
func printTaskLogs(layout artifact.Layout, id string) error {
	found := false
	for _, name := range prompt.Names {
		path := layout.AgentLogPath(id, string(name))
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		found = true
		fmt.Printf("%s %s\n", ui.BoldCyan("==>"), path)
		fmt.Print(string(data))
		fmt.Println()
	}
	if !found {
		return fmt.Errorf("no agent logs found for issue %s in %s", id, layout.LogDir())
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ai-issue %s\n", version)
		},
	}
}

// --- Output helpers ---

func printOutcome(log *logging.Logger, out *pipeline.Outcome) {
	ui.Banner(log.Out(), "✅ Issue processed", ui.BoldGreen)
	log.Plain("Issue:          #%s", out.TaskID)
	log.Plain("Classification: %s", out.Classification)
	log.Plain("Solution:       %s", out.SolutionPath)
	if out.EvaluationPath != "" {
		log.Plain("Evaluation:     %s", out.EvaluationPath)
	}
	log.Plain("Duration:       %s", out.Duration.Round(time.Second))
	for _, w := range out.Warnings {
		log.Warn("%s", w)
	}
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
