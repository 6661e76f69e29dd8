// Package agent runs the external coding agent, one process per phase.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
)

const (
	DefaultBin      = "copilot"
	DefaultLogLevel = "info"
)

// Request describes one agent invocation.
type Request struct {
	TaskID string
	Phase  string
	Prompt string

	// Model overrides the process's configured model when set.
	Model string

	// Silent suppresses terminal echo. Output still goes to LogPath.
	Silent bool

	// LogPath, when set, receives the agent's combined output.
	LogPath string
}

// Invoker runs a single agent phase to completion.
type Invoker interface {
	Invoke(ctx context.Context, req Request) error
}

// Error is returned when the agent process fails to start or exits non-zero.
// ExitCode is -1 when the process never ran.
type Error struct {
	TaskID   string
	Phase    string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("agent %s phase for task %s failed to start: %v", e.Phase, e.TaskID, e.Err)
	}
	return fmt.Sprintf("agent %s phase for task %s exited with code %d", e.Phase, e.TaskID, e.ExitCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Process invokes the agent CLI as a child process.
type Process struct {
	Bin        string
	Model      string
	RepoPath   string
	ReportPath string
	LogLevel   string

	// Manifests resolves the per-phase tool manifest. Nil means none.
	Manifests ManifestResolver

	// MaxInlinePrompt is the largest prompt passed directly on the command
	// line. Longer prompts go through a temp file. Zero selects a platform
	// default.
	MaxInlinePrompt int

	// TempDir holds prompt files. Empty means os.TempDir().
	TempDir string

	// Echo receives the formatted agent output when a request is not silent.
	Echo io.Writer

	mu sync.Mutex
}

// NewProcess returns a Process with the default binary and log level, echoing
// to stderr.
func NewProcess(model, repoPath, reportPath string) *Process {
	return &Process{
		Bin:        DefaultBin,
		Model:      model,
		RepoPath:   repoPath,
		ReportPath: reportPath,
		LogLevel:   DefaultLogLevel,
		Echo:       os.Stderr,
	}
}

// DefaultMaxInlinePrompt returns the inline prompt limit for the current OS.
func DefaultMaxInlinePrompt() int {
	if runtime.GOOS == "windows" {
		return 8000
	}
	return 100000
}

// Args builds the agent command line for req with promptArg as the -p value.
func (p *Process) Args(req Request, promptArg string) []string {
	model := req.Model
	if model == "" {
		model = p.Model
	}
	logLevel := p.LogLevel
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}

	args := []string{
		"--model", model,
		"--allow-all-tools",
		"--add-dir", p.RepoPath,
		"--add-dir", p.ReportPath,
		"--log-level", logLevel,
		"--no-color",
	}
	if p.Manifests != nil {
		if manifest := p.Manifests.Resolve(req.Phase); manifest != "" {
			args = append(args, "--additional-mcp-config", "@"+manifest)
		}
	}
	return append(args, "-p", promptArg)
}

// Invoke spawns the agent for req and waits for it to exit. The context is
// only consulted before the process starts; a running phase is never killed.
func (p *Process) Invoke(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return &Error{TaskID: req.TaskID, Phase: req.Phase, ExitCode: -1, Err: err}
	}

	promptArg := req.Prompt
	limit := p.MaxInlinePrompt
	if limit <= 0 {
		limit = DefaultMaxInlinePrompt()
	}
	if len(req.Prompt) > limit {
		path, err := writePromptFile(p.TempDir, req.Prompt)
		if err != nil {
			return &Error{TaskID: req.TaskID, Phase: req.Phase, ExitCode: -1, Err: fmt.Errorf("write prompt file: %w", err)}
		}
		defer os.Remove(path)
		promptArg = fileReference(path)
	}

	bin := p.Bin
	if bin == "" {
		bin = DefaultBin
	}
	cmd := exec.Command(bin, p.Args(req, promptArg)...)
	cmd.Dir = p.RepoPath

	var writers []io.Writer
	if req.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(req.LogPath), 0o755); err != nil {
			return &Error{TaskID: req.TaskID, Phase: req.Phase, ExitCode: -1, Err: fmt.Errorf("create log dir: %w", err)}
		}
		logFile, err := os.Create(req.LogPath)
		if err != nil {
			return &Error{TaskID: req.TaskID, Phase: req.Phase, ExitCode: -1, Err: fmt.Errorf("create log file: %w", err)}
		}
		defer logFile.Close()
		writers = append(writers, logFile)
	}
	if !req.Silent {
		echo := p.Echo
		if echo == nil {
			echo = os.Stderr
		}
		sf := ui.NewStreamFormatter(req.TaskID, echo, &p.mu)
		defer sf.Flush()
		writers = append(writers, sf)
	}
	if len(writers) > 0 {
		mw := io.MultiWriter(writers...)
		cmd.Stdout = mw
		cmd.Stderr = mw
	}

	if err := cmd.Start(); err != nil {
		return &Error{TaskID: req.TaskID, Phase: req.Phase, ExitCode: -1, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &Error{TaskID: req.TaskID, Phase: req.Phase, ExitCode: exitCode, Err: err}
	}
	return nil
}

func writePromptFile(dir, prompt string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "ai-issue-prompt-"+uuid.NewString()+".md")
	if err := os.WriteFile(path, []byte(prompt), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func fileReference(path string) string {
	return fmt.Sprintf("Read the file %s and follow the instructions in it exactly.", path)
}
