package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Kind identifies which phase produced an artifact.
type Kind string

const (
	KindResearch   Kind = "research"
	KindSolution   Kind = "solution"
	KindEvaluation Kind = "evaluation"
)

// Kinds lists every artifact kind in phase order.
var Kinds = []Kind{KindResearch, KindSolution, KindEvaluation}

const defaultExt = "md"

// Artifact is a file whose existence signals that a phase has completed.
type Artifact struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Layout maps task ids to deterministic artifact paths under a report directory.
type Layout struct {
	Dir string
	Ext string
}

// NewLayout returns a Layout rooted at dir using markdown artifacts.
func NewLayout(dir string) Layout {
	return Layout{Dir: dir, Ext: defaultExt}
}

// Path returns the artifact path for a task and kind, e.g.
// <dir>/task-30340-analysis-and-solution.md.
func (l Layout) Path(taskID string, kind Kind) string {
	ext := l.Ext
	if ext == "" {
		ext = defaultExt
	}
	suffix := string(kind)
	if kind == KindSolution {
		suffix = "analysis-and-solution"
	}
	return filepath.Join(l.Dir, fmt.Sprintf("task-%s-%s.%s", taskID, suffix, ext))
}

// Artifact returns the typed artifact for a task and kind.
func (l Layout) Artifact(taskID string, kind Kind) Artifact {
	return Artifact{Path: l.Path(taskID, kind), Kind: kind}
}

// LogDir is where batch journals and per-phase agent logs go.
func (l Layout) LogDir() string {
	return filepath.Join(l.Dir, "logs")
}

// AgentLogPath returns the per-phase log file for the agent process.
func (l Layout) AgentLogPath(taskID, phase string) string {
	return filepath.Join(l.LogDir(), fmt.Sprintf("task-%s-%s.log", taskID, phase))
}

// Status is a point-in-time existence check of one artifact.
type Status struct {
	Artifact
	Exists bool `json:"exists"`
}

// Snapshot reports which of a task's artifacts currently exist. Used for
// failure diagnostics ("research ok, solution missing").
func (l Layout) Snapshot(taskID string) []Status {
	out := make([]Status, 0, len(Kinds))
	for _, k := range Kinds {
		a := l.Artifact(taskID, k)
		out = append(out, Status{Artifact: a, Exists: Exists(a.Path)})
	}
	return out
}

// Exists reports whether path exists as a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Remove deletes an artifact. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
