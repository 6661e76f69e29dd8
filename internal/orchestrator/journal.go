package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jiaweitao001/ai-issue-cli/internal/artifact"
	"github.com/jiaweitao001/ai-issue-cli/internal/pipeline"
)

const journalRule = 80

// Journal is the append-only batch log. Each entry is assembled in memory and
// written with a single Write so entries never interleave.
type Journal struct {
	path string
	f    *os.File
}

// OpenJournal creates <dir>/batch-<timestamp>.log.
func OpenJournal(dir string, at time.Time) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, "batch-"+at.UTC().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open batch log: %w", err)
	}
	return &Journal{path: path, f: f}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Close closes the underlying file.
func (j *Journal) Close() error { return j.f.Close() }

func (j *Journal) write(b *bytes.Buffer) error {
	_, err := j.f.Write(b.Bytes())
	return err
}

// Header records the batch parameters.
func (j *Journal) Header(runID string, ids []string, concurrency int, at time.Time) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Batch Processing Log - %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Run: %s\n", runID)
	fmt.Fprintf(&b, "Issues: %s\n", strings.Join(ids, ", "))
	fmt.Fprintf(&b, "Concurrency: %d\n", concurrency)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", journalRule))
	return j.write(&b)
}

// TaskStarted records an admission.
func (j *Journal) TaskStarted(id string, index, total int, opts pipeline.Options, at time.Time) error {
	snapshot, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", journalRule))
	fmt.Fprintf(&b, "ISSUE #%s [%d/%d]\n", id, index, total)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", journalRule))
	fmt.Fprintf(&b, "Started at: %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Options: %s\n", snapshot)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", journalRule))
	return j.write(&b)
}

// Completion is what the journal records when a task settles.
type Completion struct {
	TaskID   string
	At       time.Time
	Duration time.Duration
	Warnings []string

	// Failure is nil for a successful task.
	Failure *pipeline.Failure

	// Artifacts is the existence snapshot taken at failure time.
	Artifacts []artifact.Status
}

// TaskFinished records a settled task.
func (j *Journal) TaskFinished(c Completion) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", journalRule))
	fmt.Fprintf(&b, "Issue: #%s\n", c.TaskID)
	fmt.Fprintf(&b, "Completed at: %s\n", c.At.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %.1fs\n", c.Duration.Seconds())
	if c.Failure == nil {
		fmt.Fprintf(&b, "Status: ✅ SUCCESS\n")
	} else {
		fmt.Fprintf(&b, "Status: ❌ FAILED\n")
		fmt.Fprintf(&b, "\nPhase: %s\nKind: %s\n", c.Failure.Cause.Phase, c.Failure.Cause.Kind)
		fmt.Fprintf(&b, "\nError Message:\n%s\n", c.Failure.Cause.Message)
		if len(c.Artifacts) > 0 {
			fmt.Fprintf(&b, "\nGenerated Files:\n")
			for _, a := range c.Artifacts {
				mark := "❌ MISSING"
				if a.Exists {
					mark = "✅ EXISTS"
				}
				fmt.Fprintf(&b, "  %s: %s (%s)\n", a.Kind, mark, a.Path)
			}
		}
	}
	if len(c.Warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings:\n")
		for _, w := range c.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return j.write(&b)
}

// Summary records the final counts and failing tasks.
func (j *Journal) Summary(r *Result) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", journalRule))
	fmt.Fprintf(&b, "\nBatch Processing Summary\n")
	fmt.Fprintf(&b, "Total: %d\n", r.Attempted)
	fmt.Fprintf(&b, "Success: %d\n", len(r.Succeeded))
	fmt.Fprintf(&b, "Failed: %d\n", len(r.Failed))
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "  - #%s [%s/%s]: %s\n", f.TaskID, f.Cause.Phase, f.Cause.Kind, f.Cause.Message)
	}
	fmt.Fprintf(&b, "Completed at: %s\n", r.FinishedAt.UTC().Format(time.RFC3339))
	return j.write(&b)
}
