// Package env runs the preflight checks behind `ai-issue check`.
package env

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jiaweitao001/ai-issue-cli/internal/prompt"
	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
)

const versionTimeout = 10 * time.Second

// Check is the result of one preflight check.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Help   string `json:"help,omitempty"`
}

// Options are the settings the checks inspect.
type Options struct {
	AgentBin   string
	RepoPath   string
	ReportPath string
	Templates  *prompt.Loader
}

// Run executes every check in display order.
func Run(ctx context.Context, opts Options) []Check {
	checks := []Check{
		checkAgent(ctx, opts.AgentBin),
		checkDir("Repository path", opts.RepoPath, "set it with: ai-issue config set repoPath <path>"),
		checkDir("Report path", opts.ReportPath, fmt.Sprintf("create it with: mkdir -p %s", opts.ReportPath)),
	}
	for _, name := range prompt.Names {
		checks = append(checks, checkTemplate(opts.Templates, name))
	}
	return checks
}

// AllOK reports whether every check passed.
func AllOK(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func checkAgent(ctx context.Context, bin string) Check {
	c := Check{Name: "Agent CLI (" + bin + ")"}
	path, err := exec.LookPath(bin)
	if err != nil {
		c.Detail = "not found on PATH"
		c.Help = "install it with: npm install -g @github/copilot, or set agentBin"
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		c.Detail = fmt.Sprintf("%s --version failed: %v", path, err)
		c.Help = "check that the agent CLI is installed correctly"
		return c
	}
	c.OK = true
	c.Detail = firstLine(string(out))
	return c
}

func checkDir(name, path, help string) Check {
	c := Check{Name: name, Detail: path}
	if path == "" {
		c.Detail = "not set"
		c.Help = help
		return c
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		c.Help = help
		return c
	}
	c.OK = true
	return c
}

func checkTemplate(l *prompt.Loader, name prompt.Name) Check {
	c := Check{Name: "Prompt template (" + string(name) + ")"}
	if l == nil || l.Dir == "" {
		c.Detail = "built-in"
	} else {
		c.Detail = l.Dir
	}
	if err := l.CheckOne(name); err != nil {
		c.Detail = err.Error()
		c.Help = "add " + name.File() + " to the template dir, or unset templateDir to use the built-in one"
		return c
	}
	c.OK = true
	return c
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Print writes the numbered check list and returns AllOK(checks).
func Print(w io.Writer, checks []Check) bool {
	ui.Banner(w, "🔍 Environment Check", ui.BoldCyan)
	for i, c := range checks {
		icon, paint := "✅", ui.Green
		if !c.OK {
			icon, paint = "❌", ui.Red
		}
		line := fmt.Sprintf("%d. %s %s", i+1, icon, c.Name)
		if c.Detail != "" {
			line += ui.Dim("  " + c.Detail)
		}
		fmt.Fprintln(w, paint(line))
		if !c.OK && c.Help != "" {
			fmt.Fprintln(w, ui.Yellow("   💡 "+c.Help))
		}
	}

	ok := AllOK(checks)
	fmt.Fprintln(w)
	if ok {
		fmt.Fprintln(w, ui.Green(ui.Rule()))
		fmt.Fprintln(w, ui.BoldGreen("✅ All checks passed!"))
	} else {
		fmt.Fprintln(w, ui.Red(ui.Rule()))
		fmt.Fprintln(w, ui.BoldRed("❌ Some checks failed, please fix the above issues"))
	}
	return ok
}
