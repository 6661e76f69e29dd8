package orchestrator

import (
	"time"

	"github.com/jiaweitao001/ai-issue-cli/internal/pipeline"
)

// DefaultConcurrency is the number of pipelines run at once when none is set.
const DefaultConcurrency = 3

// Failure is one failed task in a batch result.
type Failure struct {
	TaskID     string         `json:"taskId"`
	Cause      pipeline.Cause `json:"cause"`
	DurationMs int64          `json:"durationMs"`
}

// Result summarises a batch run. It is built by the scheduler loop as tasks
// settle and is complete once Run returns.
type Result struct {
	RunID       string                       `json:"runId"`
	Concurrency int                          `json:"concurrency"`
	Attempted   int                          `json:"attempted"`
	Succeeded   []string                     `json:"succeeded"`
	Failed      []Failure                    `json:"failed"`
	Warnings    map[string][]string          `json:"warnings,omitempty"`
	Outcomes    map[string]*pipeline.Outcome `json:"outcomes,omitempty"`
	LogPath     string                       `json:"logPath"`
	StartedAt   time.Time                    `json:"startedAt"`
	FinishedAt  time.Time                    `json:"finishedAt"`
}

// OK reports whether every task succeeded.
func (r *Result) OK() bool {
	return len(r.Failed) == 0
}

// Duration is the wall-clock time of the batch.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// taskResult carries a settled task from its goroutine to the scheduler loop.
type taskResult struct {
	TaskID   string
	Index    int
	Outcome  *pipeline.Outcome
	Err      error
	Duration time.Duration
}
