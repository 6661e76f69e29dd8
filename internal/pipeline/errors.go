package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jiaweitao001/ai-issue-cli/internal/agent"
	"github.com/jiaweitao001/ai-issue-cli/internal/prompt"
)

// ArtifactTimeoutError means the agent exited but the expected artifact never
// appeared within the phase timeout.
type ArtifactTimeoutError struct {
	TaskID  string
	Phase   string
	Path    string
	Timeout time.Duration
}

func (e *ArtifactTimeoutError) Error() string {
	return fmt.Sprintf("%s artifact for task %s not found at %s after %s", e.Phase, e.TaskID, e.Path, e.Timeout)
}

// ArtifactCleanupError is recorded when the research artifact cannot be
// removed. It never fails a task.
type ArtifactCleanupError struct {
	Path string
	Err  error
}

func (e *ArtifactCleanupError) Error() string {
	return fmt.Sprintf("cleanup research artifact: %v", e.Err)
}

func (e *ArtifactCleanupError) Unwrap() error { return e.Err }

// EvaluationWarning wraps an evaluation failure attached to a task that
// otherwise succeeded.
type EvaluationWarning struct {
	TaskID string
	Err    error
}

func (e *EvaluationWarning) Error() string {
	return fmt.Sprintf("evaluation for task %s failed: %v", e.TaskID, e.Err)
}

func (e *EvaluationWarning) Unwrap() error { return e.Err }

// Failure is the terminal error of a FAILED task.
type Failure struct {
	TaskID string
	Cause  Cause
	Err    error
}

func (e *Failure) Error() string {
	return fmt.Sprintf("task %s failed in %s (%s): %s", e.TaskID, e.Cause.Phase, e.Cause.Kind, e.Cause.Message)
}

func (e *Failure) Unwrap() error { return e.Err }

// NewFailure builds a Failure, deriving the kind from err.
func NewFailure(taskID, phase string, err error) *Failure {
	return &Failure{
		TaskID: taskID,
		Cause:  Cause{Phase: phase, Kind: KindOf(err), Message: err.Error()},
		Err:    err,
	}
}

// KindOf maps an error to a failure kind.
func KindOf(err error) string {
	var (
		tnf      *prompt.TemplateNotFoundError
		agentErr *agent.Error
		timeout  *ArtifactTimeoutError
		failure  *Failure
	)
	switch {
	case errors.As(err, &failure):
		return failure.Cause.Kind
	case errors.As(err, &tnf):
		return KindTemplateNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &agentErr):
		return KindAgentInvocation
	case errors.As(err, &timeout):
		return KindArtifactTimeout
	case errors.Is(err, errTemplate):
		return KindTemplate
	default:
		return KindIO
	}
}

var errTemplate = errors.New("template error")
