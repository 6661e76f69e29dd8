// Package validator checks the structure of generated reports against the
// sections the prompt templates ask for. Findings are advisory: a report that
// fails validation is still a finished report.
package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Kind is the report type inferred from the file name.
type Kind string

const (
	KindResearch Kind = "research"
	KindSolution Kind = "solution"
	KindUnknown  Kind = "unknown"
)

// DefaultLimit bounds ValidateFiles when the caller passes a limit < 1.
const DefaultLimit = 4

const minResearchLength = 100

var requiredSections = []string{
	"## 1. Problem Analysis",
	"## 2. Git Operation Record",
	"## 3. Pre-submission Checklist",
	"## 4. Issue Reply",
}

// Sections that only show up when the agent ignored the template.
var forbiddenSections = []string{
	"## Technical Implementation",
	"## Solution Summary",
	"## Issue Information",
	"## Files Changed",
	"## Verification",
	"## Usage Example",
	"## API Reference",
	"## Notes",
	"## Import",
	"## Summary",
	"## Conclusion",
	"## Recommendations",
	"## Additional Notes",
	"## Code Changes Summary",
	"## Before/After Comparison",
}

var analysisFields = []string{
	"**Problem symptoms**:",
	"**Root cause**:",
	"**Impact scope**:",
	"**Swagger link**:",
}

var gitSubsections = []string{
	"### Branch Info",
	"### Modified Files",
	"### Commit Message",
}

const (
	checklistHeading = "## 3. Pre-submission Checklist"
	checklistHeader  = "| Check Item | Yes/No | Notes |"
	replyOpening     = "Thank you for raising the issue"
)

var (
	commitHashPattern  = regexp.MustCompile("(?i)Commit Hash:\\s*`?([a-f0-9]+)`?")
	unfilledYesNo      = regexp.MustCompile(`\|\s*\[Yes/No\]\s*\|`)
	placeholderPattern = regexp.MustCompile(`(?i)\[(?:NUMBER|One sentence|Brief|URL|branch-name|40-character|path/to|e\.g\.|PR reference|Field names|Test file)\S*?\]`)
)

// Result is the outcome of validating one report.
type Result struct {
	Path     string   `json:"path"`
	Kind     Kind     `json:"kind"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether the report has no errors. Warnings do not count.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// DetectKind infers the report kind from its file name.
func DetectKind(path string) Kind {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, "-research.md"):
		return KindResearch
	case strings.HasSuffix(name, "-analysis-and-solution.md"), strings.HasSuffix(name, "-solution.md"):
		return KindSolution
	default:
		return KindUnknown
	}
}

// Check validates report content. The kind is taken from path.
func Check(path, content string) *Result {
	res := &Result{Path: path, Kind: DetectKind(path)}
	switch res.Kind {
	case KindResearch:
		checkResearch(res, content)
	case KindSolution:
		checkSolution(res, content)
	default:
		res.errorf("cannot determine report type from file name, expected *-research.md or *-analysis-and-solution.md")
	}
	return res
}

func checkResearch(res *Result, content string) {
	if len(strings.TrimSpace(content)) < minResearchLength {
		res.errorf("report appears to be empty or too short")
	}
	if !strings.Contains(content, "# Issue #") && !strings.Contains(content, "# Issue#") {
		res.warnf(`report should have a title starting with "# Issue #"`)
	}
}

func checkSolution(res *Result, content string) {
	for _, s := range requiredSections {
		if !strings.Contains(content, s) {
			res.errorf("missing required section: %s", s)
		}
	}
	for _, s := range forbiddenSections {
		if containsHeading(content, s) {
			res.errorf("forbidden section found: %s", s)
		}
	}
	for _, f := range analysisFields {
		if !strings.Contains(content, f) {
			res.errorf("missing field in Problem Analysis: %s", f)
		}
	}
	for _, s := range gitSubsections {
		if !strings.Contains(content, s) {
			res.errorf("missing %q in Git Operation Record", s)
		}
	}

	if m := commitHashPattern.FindStringSubmatch(content); m != nil {
		if len(m[1]) != 40 {
			res.warnf("commit hash should be 40 characters, found %d", len(m[1]))
		}
	} else {
		res.errorf("missing or malformed Commit Hash")
	}

	if !strings.Contains(content, checklistHeader) {
		res.warnf("Pre-submission Checklist may not have the expected table header")
	}
	if section, ok := checklistSection(content); ok {
		if n := len(unfilledYesNo.FindAllStringIndex(section, -1)); n > 0 {
			res.errorf("found %d unfilled checklist items (still showing [Yes/No])", n)
		}
	}

	if !strings.Contains(content, replyOpening) {
		res.warnf(`Issue Reply should start with "%s."`, replyOpening)
	}

	if n := len(placeholderPattern.FindAllStringIndex(content, -1)); n > 0 {
		res.errorf("found %d unfilled template placeholders", n)
	}
}

// containsHeading matches a heading on its own line so "## Notes" does not
// match inside "## Notes on scope" or a longer heading with the same prefix.
func containsHeading(content, heading string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimRight(line, " \t\r") == heading {
			return true
		}
	}
	return false
}

func checklistSection(content string) (string, bool) {
	_, after, ok := strings.Cut(content, checklistHeading)
	if !ok {
		return "", false
	}
	section, _, _ := strings.Cut(after, "## 4.")
	return section, true
}

// Hook adapts Check to the pipeline's advisory validator. Errors and warnings
// are flattened into one list of findings.
type Hook struct{}

// Validate returns every finding for a report, errors first.
func (Hook) Validate(path, content string) []string {
	res := Check(path, content)
	out := make([]string, 0, len(res.Errors)+len(res.Warnings))
	out = append(out, res.Errors...)
	for _, w := range res.Warnings {
		out = append(out, "warning: "+w)
	}
	return out
}

// CheckFile reads and validates one report.
func CheckFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return Check(path, string(data)), nil
}

// ValidateFiles checks many reports with at most limit running at once. A file
// that cannot be read is recorded as a result with one error and does not
// stop the others. Results are returned in input order.
func ValidateFiles(ctx context.Context, paths []string, limit int) ([]*Result, error) {
	if limit < 1 {
		limit = DefaultLimit
	}
	results := make([]*Result, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := CheckFile(path)
			if err != nil {
				res = &Result{Path: path, Kind: DetectKind(path), Errors: []string{err.Error()}}
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FindReports lists report files in dir. When taskID is set only that task's
// reports are returned. Paths are sorted.
func FindReports(dir, taskID string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if DetectKind(name) == KindUnknown {
			continue
		}
		if taskID != "" && !strings.HasPrefix(name, "task-"+taskID+"-") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}
