package pipeline

import "time"

// State is a pipeline phase. DONE and FAILED are terminal.
type State string

const (
	StateResearch State = "RESEARCH"
	StateClassify State = "CLASSIFY"
	StateSolve    State = "SOLVE"
	StateGuide    State = "GUIDE"
	StateEvaluate State = "EVALUATE"
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
)

// Terminal reports whether s is DONE or FAILED.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Classification decides which phase-2 template a task gets.
type Classification string

const (
	CodeChange Classification = "CODE_CHANGE"
	Guidance   Classification = "GUIDANCE"
)

// Options are shared by every task of a run.
type Options struct {
	Concurrency    int    `json:"concurrency"`
	SkipEvaluation bool   `json:"skipEvaluation"`
	Silent         bool   `json:"silent"`
	Debug          bool   `json:"debug"`
	Model          string `json:"model,omitempty"`
}

// Task is one issue to resolve.
type Task struct {
	ID      string  `json:"id"`
	Options Options `json:"options"`
}

// Outcome is what a runner returns for a task, whether it succeeded or not.
type Outcome struct {
	TaskID         string         `json:"taskId"`
	State          State          `json:"state"`
	Classification Classification `json:"classification,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	SolutionPath   string         `json:"solutionPath,omitempty"`
	EvaluationPath string         `json:"evaluationPath,omitempty"`
	Duration       time.Duration  `json:"duration"`
}

// Phase names used in failure causes.
const (
	PhaseResearch = "research"
	PhaseSolve    = "solve"
	PhaseGuide    = "guide"
	PhaseEvaluate = "evaluate"
)

// Failure kinds.
const (
	KindTemplateNotFound = "template_not_found"
	KindTemplate         = "template"
	KindAgentInvocation  = "agent_invocation"
	KindArtifactTimeout  = "artifact_timeout"
	KindArtifactMissing  = "artifact_missing"
	KindIO               = "io"
	KindCancelled        = "cancelled"
	KindPanic            = "panic"
)

// Cause is the structured reason a task failed.
type Cause struct {
	Phase   string `json:"phase"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
