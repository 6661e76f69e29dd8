// Package pipeline runs one issue through research, solve or guide, and
// evaluation, using artifact files as the only completion signal.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jiaweitao001/ai-issue-cli/internal/agent"
	"github.com/jiaweitao001/ai-issue-cli/internal/artifact"
	"github.com/jiaweitao001/ai-issue-cli/internal/logging"
	"github.com/jiaweitao001/ai-issue-cli/internal/prompt"
)

const (
	DefaultResearchTimeout   = 60 * time.Second
	DefaultSolutionTimeout   = 60 * time.Second
	DefaultEvaluationTimeout = 60 * time.Second
)

// Config is the resolved configuration a runner needs.
type Config struct {
	RepoPath     string
	ReportPath   string
	IssueBaseURL string

	ResearchTimeout   time.Duration
	SolutionTimeout   time.Duration
	EvaluationTimeout time.Duration
}

// Validator checks a finished report's structure. Findings are advisory.
type Validator interface {
	Validate(path, content string) []string
}

// Runner drives the per-task state machine.
type Runner struct {
	Config    Config
	Invoker   agent.Invoker
	Templates *prompt.Loader
	Waiter    *artifact.Waiter
	Layout    artifact.Layout

	// Validator is optional.
	Validator Validator

	Log *logging.Logger
}

// NewRunner returns a Runner with default timeouts and polling.
func NewRunner(cfg Config, inv agent.Invoker, templates *prompt.Loader, log *logging.Logger) *Runner {
	if cfg.ResearchTimeout <= 0 {
		cfg.ResearchTimeout = DefaultResearchTimeout
	}
	if cfg.SolutionTimeout <= 0 {
		cfg.SolutionTimeout = DefaultSolutionTimeout
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = DefaultEvaluationTimeout
	}
	return &Runner{
		Config:    cfg,
		Invoker:   inv,
		Templates: templates,
		Waiter:    artifact.NewWaiter(),
		Layout:    artifact.NewLayout(cfg.ReportPath),
		Log:       log,
	}
}

// IssueURL returns the issue link for a task id.
func (r *Runner) IssueURL(taskID string) string {
	return strings.TrimRight(r.Config.IssueBaseURL, "/") + "/" + taskID
}

// phase is one agent round trip: render, invoke, wait for the artifact.
type phase struct {
	name     string
	template prompt.Name
	output   artifact.Kind
	timeout  time.Duration
	data     prompt.Data
}

// Run executes the full pipeline for task. On failure the returned outcome is
// in StateFailed and the error is a *Failure.
func (r *Runner) Run(ctx context.Context, task Task) (*Outcome, error) {
	start := time.Now()
	log := r.logger(task)
	out := &Outcome{TaskID: task.ID, State: StateResearch}

	fail := func(phaseName string, err error) (*Outcome, error) {
		out.State = StateFailed
		out.Duration = time.Since(start)
		f := NewFailure(task.ID, phaseName, err)
		log.Error("%s phase failed: %s", phaseName, f.Cause.Message)
		return out, f
	}

	// RESEARCH
	log.Info("Phase 1: researching issue %s", r.IssueURL(task.ID))
	researchPath, err := r.runPhase(ctx, task, log, phase{
		name:     PhaseResearch,
		template: prompt.Research,
		output:   artifact.KindResearch,
		timeout:  r.Config.ResearchTimeout,
	})
	if err != nil {
		return fail(PhaseResearch, err)
	}
	research, err := os.ReadFile(researchPath)
	if err != nil {
		return fail(PhaseResearch, fmt.Errorf("read research report: %w", err))
	}
	log.Success("Research report ready: %s", researchPath)

	// CLASSIFY
	out.State = StateClassify
	out.Classification = Classify(string(research))
	log.Debug("classified as %s", out.Classification)

	// SOLVE / GUIDE
	solve := phase{
		name:     PhaseSolve,
		template: prompt.Solution,
		output:   artifact.KindSolution,
		timeout:  r.Config.SolutionTimeout,
		data:     prompt.Data{Research: string(research)},
	}
	out.State = StateSolve
	if out.Classification == Guidance {
		solve.name = PhaseGuide
		solve.template = prompt.Guidance
		out.State = StateGuide
		log.Info("Phase 2: preparing guidance")
	} else {
		log.Info("Phase 2: implementing solution")
	}
	solutionPath, err := r.runPhase(ctx, task, log, solve)
	if err != nil {
		return fail(solve.name, err)
	}
	out.SolutionPath = solutionPath
	log.Success("Solution report ready: %s", solutionPath)

	if err := artifact.Remove(researchPath); err != nil {
		cleanupErr := &ArtifactCleanupError{Path: researchPath, Err: err}
		log.Warn("%v", cleanupErr)
		out.Warnings = append(out.Warnings, cleanupErr.Error())
	}

	solution, err := os.ReadFile(solutionPath)
	if err != nil {
		log.Warn("could not read solution report: %v", err)
	} else if r.Validator != nil {
		for _, finding := range r.Validator.Validate(solutionPath, string(solution)) {
			out.Warnings = append(out.Warnings, "validation: "+finding)
		}
	}

	// EVALUATE
	if !task.Options.SkipEvaluation {
		out.State = StateEvaluate
		log.Info("Phase 3: evaluating solution")
		evalPath, err := r.runPhase(ctx, task, log, r.evaluationPhase(string(solution)))
		if err != nil {
			w := &EvaluationWarning{TaskID: task.ID, Err: err}
			log.Warn("%v", w)
			out.Warnings = append(out.Warnings, w.Error())
		} else {
			out.EvaluationPath = evalPath
			log.Success("Evaluation report ready: %s", evalPath)
		}
	}

	out.State = StateDone
	out.Duration = time.Since(start)
	return out, nil
}

// Evaluate runs only the evaluation phase against an existing solution
// report. Unlike Run, an evaluation failure is returned as an error.
func (r *Runner) Evaluate(ctx context.Context, task Task) (*Outcome, error) {
	start := time.Now()
	log := r.logger(task)
	out := &Outcome{TaskID: task.ID, State: StateEvaluate}

	solutionPath := r.Layout.Path(task.ID, artifact.KindSolution)
	solution, err := os.ReadFile(solutionPath)
	if err != nil {
		out.State = StateFailed
		out.Duration = time.Since(start)
		f := &Failure{
			TaskID: task.ID,
			Cause:  Cause{Phase: PhaseEvaluate, Kind: KindArtifactMissing, Message: fmt.Sprintf("solution report not found at %s", solutionPath)},
			Err:    err,
		}
		return out, f
	}
	out.SolutionPath = solutionPath

	log.Info("Evaluating solution for issue %s", r.IssueURL(task.ID))
	evalPath, err := r.runPhase(ctx, task, log, r.evaluationPhase(string(solution)))
	if err != nil {
		out.State = StateFailed
		out.Duration = time.Since(start)
		return out, NewFailure(task.ID, PhaseEvaluate, err)
	}
	out.EvaluationPath = evalPath
	out.State = StateDone
	out.Duration = time.Since(start)
	log.Success("Evaluation report ready: %s", evalPath)
	return out, nil
}

func (r *Runner) evaluationPhase(solution string) phase {
	return phase{
		name:     PhaseEvaluate,
		template: prompt.Evaluation,
		output:   artifact.KindEvaluation,
		timeout:  r.Config.EvaluationTimeout,
		data:     prompt.Data{Solution: solution},
	}
}

// runPhase renders the phase prompt, invokes the agent and waits for the
// artifact. It returns the artifact path.
func (r *Runner) runPhase(ctx context.Context, task Task, log *logging.Logger, p phase) (string, error) {
	outPath := r.Layout.Path(task.ID, p.output)

	data := p.data
	data.TaskID = task.ID
	data.IssueURL = r.IssueURL(task.ID)
	data.RepoPath = r.Config.RepoPath
	data.ReportPath = r.Config.ReportPath
	data.OutputPath = outPath

	text, err := r.Templates.Render(p.template, data)
	if err != nil {
		var tnf *prompt.TemplateNotFoundError
		if errors.As(err, &tnf) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", errTemplate, err)
	}
	log.Debug("%s prompt is %d bytes", p.name, len(text))

	req := agent.Request{
		TaskID:  task.ID,
		Phase:   string(p.template),
		Prompt:  text,
		Model:   task.Options.Model,
		Silent:  task.Options.Silent,
		LogPath: r.Layout.AgentLogPath(task.ID, string(p.template)),
	}
	if err := r.Invoker.Invoke(ctx, req); err != nil {
		return "", err
	}

	log.Info("Waiting for %s report...", p.output)
	ok := r.waiter().Wait(ctx, outPath, p.timeout, func(elapsed time.Duration) {
		log.Info("Still waiting for %s report (%ds)", p.output, int(elapsed.Seconds()))
	})
	if !ok {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", &ArtifactTimeoutError{TaskID: task.ID, Phase: p.name, Path: outPath, Timeout: p.timeout}
	}
	return outPath, nil
}

func (r *Runner) waiter() *artifact.Waiter {
	if r.Waiter == nil {
		return artifact.NewWaiter()
	}
	return r.Waiter
}

func (r *Runner) logger(task Task) *logging.Logger {
	log := r.Log.Task(task.ID)
	if task.Options.Silent {
		log = log.Quiet()
	}
	if task.Options.Debug {
		log = log.Verbose()
	}
	return log
}
