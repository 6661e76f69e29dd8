package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jiaweitao001/ai-issue-cli/internal/artifact"
	"github.com/jiaweitao001/ai-issue-cli/internal/logging"
	"github.com/jiaweitao001/ai-issue-cli/internal/pipeline"
	"github.com/jiaweitao001/ai-issue-cli/internal/state"
	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
)

// Runner runs one task through the pipeline.
type Runner interface {
	Run(ctx context.Context, task pipeline.Task) (*pipeline.Outcome, error)
}

// Scheduler runs many pipelines under a concurrency cap.
type Scheduler struct {
	Runner Runner
	Layout artifact.Layout
	Log    *logging.Logger

	// PersistState writes run progress under Layout.Dir for the status
	// command.
	PersistState bool
}

// New creates a Scheduler writing journals and state under layout.Dir.
func New(runner Runner, layout artifact.Layout, log *logging.Logger) *Scheduler {
	return &Scheduler{
		Runner:       runner,
		Layout:       layout,
		Log:          log,
		PersistState: true,
	}
}

// run holds the bookkeeping for one Run call. Only the scheduler loop
// touches it.
type run struct {
	total   int
	done    int
	active  []string
	started map[string]time.Time
	result  *Result
	journal *Journal
	state   *state.RunState
}

// Run processes ids with at most opts.Concurrency pipelines in flight.
// Whichever task settles first frees its slot first. A task's failure or
// panic is recorded and never stops the others. Once ctx is cancelled no more
// tasks are admitted; in-flight tasks are awaited and the rest of the backlog
// is recorded as cancelled.
//
// The returned error is only for problems setting up the batch itself; task
// failures are reported in the Result.
func (s *Scheduler) Run(ctx context.Context, ids []string, opts pipeline.Options) (*Result, error) {
	n := opts.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	opts.Concurrency = n

	startedAt := time.Now()
	r := &run{
		total:   len(ids),
		started: make(map[string]time.Time, len(ids)),
		result: &Result{
			RunID:       uuid.NewString(),
			Concurrency: n,
			Attempted:   len(ids),
			Succeeded:   []string{},
			Failed:      []Failure{},
			Warnings:    make(map[string][]string),
			Outcomes:    make(map[string]*pipeline.Outcome, len(ids)),
			StartedAt:   startedAt,
		},
	}

	journal, err := OpenJournal(s.Layout.LogDir(), startedAt)
	if err != nil {
		return nil, err
	}
	defer journal.Close()
	r.journal = journal
	r.result.LogPath = journal.Path()
	if err := journal.Header(r.result.RunID, ids, n, startedAt); err != nil {
		return nil, fmt.Errorf("write batch log header: %w", err)
	}

	if s.PersistState {
		st, err := state.New(s.Layout.Dir, ids, n)
		if err != nil {
			return nil, fmt.Errorf("init state: %w", err)
		}
		st.RunID = r.result.RunID
		if err := st.SetLogPath(journal.Path()); err != nil {
			s.Log.Warn("save run state: %v", err)
		}
		r.state = st
	}

	ui.Banner(s.Log.Out(), "📦 Batch Processing (parallel)", ui.BoldCyan)
	s.Log.Info("Total %d issues to process (%d concurrent)", len(ids), n)
	s.Log.Info("Log file: %s", journal.Path())

	done := make(chan taskResult)
	backlog := append([]string(nil), ids...)
	index := 0

	for len(backlog) > 0 || len(r.active) > 0 {
		for len(backlog) > 0 && len(r.active) < n && ctx.Err() == nil {
			id := backlog[0]
			backlog = backlog[1:]
			index++
			s.admit(r, pipeline.Task{ID: id, Options: opts}, index)
			s.dispatch(ctx, pipeline.Task{ID: id, Options: opts}, index, done)
		}

		if ctx.Err() != nil && len(backlog) > 0 {
			for _, id := range backlog {
				s.cancel(r, id, ctx.Err())
			}
			backlog = nil
		}

		if len(r.active) == 0 {
			continue
		}

		res := <-done
		s.settle(r, res)
	}

	r.result.FinishedAt = time.Now()
	if err := journal.Summary(r.result); err != nil {
		s.Log.Warn("write batch log summary: %v", err)
	}

	if r.state != nil {
		status := state.RunCompleted
		switch {
		case ctx.Err() != nil:
			status = state.RunCancelled
		case !r.result.OK():
			status = state.RunFailed
		}
		if err := r.state.SetStatus(status); err != nil {
			s.Log.Warn("save run state: %v", err)
		}
		if err := r.state.Archive(); err != nil {
			s.Log.Warn("archive run state: %v", err)
		}
	}

	return r.result, nil
}

// dispatch runs task in its own goroutine and always reports back on done,
// converting a panic into a failure.
func (s *Scheduler) dispatch(ctx context.Context, task pipeline.Task, index int, done chan<- taskResult) {
	go func() {
		start := time.Now()
		res := taskResult{TaskID: task.ID, Index: index}
		defer func() {
			if p := recover(); p != nil {
				res.Outcome = nil
				res.Err = &pipeline.Failure{
					TaskID: task.ID,
					Cause:  pipeline.Cause{Kind: pipeline.KindPanic, Message: fmt.Sprint(p)},
					Err:    fmt.Errorf("panic: %v", p),
				}
			}
			res.Duration = time.Since(start)
			done <- res
		}()
		res.Outcome, res.Err = s.Runner.Run(ctx, task)
	}()
}

func (s *Scheduler) admit(r *run, task pipeline.Task, index int) {
	now := time.Now()
	r.active = append(r.active, task.ID)
	r.started[task.ID] = now

	if err := r.journal.TaskStarted(task.ID, index, r.total, task.Options, now); err != nil {
		s.Log.Warn("write batch log: %v", err)
	}
	s.Log.Plain("%s", ui.BoldCyan(fmt.Sprintf("[%d/%d] 🚀 Starting Issue #%s", index, r.total, task.ID)))
	s.updateState(r, task.ID, &state.SessionState{
		Status:    state.StatusRunning,
		Phase:     string(pipeline.StateResearch),
		StartedAt: &now,
	})
}

func (s *Scheduler) settle(r *run, res taskResult) {
	now := time.Now()
	r.done++
	r.active = remove(r.active, res.TaskID)
	started := r.started[res.TaskID]
	tag := fmt.Sprintf("[%d/%d]", res.Index, r.total)

	if res.Outcome != nil {
		r.result.Outcomes[res.TaskID] = res.Outcome
	}
	var warnings []string
	if res.Outcome != nil && len(res.Outcome.Warnings) > 0 {
		warnings = res.Outcome.Warnings
		r.result.Warnings[res.TaskID] = warnings
	}

	ss := &state.SessionState{StartedAt: &started, FinishedAt: &now, Warnings: warnings}
	if res.Outcome != nil {
		ss.Phase = string(res.Outcome.State)
		ss.Classification = string(res.Outcome.Classification)
		ss.SolutionPath = res.Outcome.SolutionPath
	}

	completion := Completion{TaskID: res.TaskID, At: now, Duration: res.Duration, Warnings: warnings}

	if res.Err == nil {
		r.result.Succeeded = append(r.result.Succeeded, res.TaskID)
		ss.Status = state.StatusCompleted
		s.Log.Success("%s Issue #%s completed in %.1fs", tag, res.TaskID, res.Duration.Seconds())
		for _, w := range warnings {
			s.Log.Warn("%s Issue #%s: %s", tag, res.TaskID, w)
		}
	} else {
		f := asFailure(res.TaskID, res.Err)
		r.result.Failed = append(r.result.Failed, Failure{TaskID: res.TaskID, Cause: f.Cause, DurationMs: res.Duration.Milliseconds()})
		ss.Status = state.StatusFailed
		ss.Error = f.Cause.Message
		completion.Failure = f
		completion.Artifacts = s.Layout.Snapshot(res.TaskID)
		s.Log.Error("%s Issue #%s failed after %.1fs", tag, res.TaskID, res.Duration.Seconds())
		s.Log.Error("  Error: %s", f.Cause.Message)
	}

	if err := r.journal.TaskFinished(completion); err != nil {
		s.Log.Warn("write batch log: %v", err)
	}
	s.updateState(r, res.TaskID, ss)

	if len(r.active) > 0 {
		s.Log.Info("Progress: %d/%d | Active: #%s", r.done, r.total, strings.Join(r.active, ", #"))
	}
}

// cancel records a backlog task that was never admitted.
func (s *Scheduler) cancel(r *run, id string, err error) {
	now := time.Now()
	r.done++
	cause := pipeline.Cause{Kind: pipeline.KindCancelled, Message: fmt.Sprintf("not started: %v", err)}
	r.result.Failed = append(r.result.Failed, Failure{TaskID: id, Cause: cause})

	if jerr := r.journal.TaskFinished(Completion{
		TaskID:  id,
		At:      now,
		Failure: &pipeline.Failure{TaskID: id, Cause: cause, Err: err},
	}); jerr != nil {
		s.Log.Warn("write batch log: %v", jerr)
	}
	s.updateState(r, id, &state.SessionState{Status: state.StatusCancelled, FinishedAt: &now, Error: cause.Message})
	s.Log.Warn("Issue #%s cancelled before it started", id)
}

func (s *Scheduler) updateState(r *run, id string, ss *state.SessionState) {
	if r.state == nil {
		return
	}
	if err := r.state.UpdateSession(id, ss); err != nil {
		s.Log.Warn("save run state: %v", err)
	}
}

func asFailure(taskID string, err error) *pipeline.Failure {
	var f *pipeline.Failure
	if errors.As(err, &f) {
		return f
	}
	return pipeline.NewFailure(taskID, "", err)
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
