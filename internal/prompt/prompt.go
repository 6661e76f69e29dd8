// Package prompt renders the per-phase agent prompts from markdown templates.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.md
var defaults embed.FS

// Name identifies a phase template.
type Name string

const (
	Research   Name = "research"
	Solution   Name = "solution"
	Guidance   Name = "guidance"
	Evaluation Name = "evaluation"
)

// Names lists every template the pipeline needs.
var Names = []Name{Research, Solution, Guidance, Evaluation}

// File returns the template's file name, e.g. research.md.
func (n Name) File() string { return string(n) + ".md" }

// TemplateNotFoundError is returned when a template directory is configured
// but does not contain the requested template.
type TemplateNotFoundError struct {
	Name Name
	Path string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s not found at %s", e.Name, e.Path)
}

// Data holds the values available to every template.
type Data struct {
	TaskID     string
	IssueURL   string
	RepoPath   string
	ReportPath string
	OutputPath string
	Research   string
	Solution   string
}

// Loader resolves templates from Dir, or from the embedded defaults when Dir
// is empty.
type Loader struct {
	Dir string
}

// NewLoader returns a Loader for dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Source returns the raw template text for name.
func (l *Loader) Source(name Name) (string, error) {
	if l == nil || l.Dir == "" {
		b, err := defaults.ReadFile("templates/" + name.File())
		if err != nil {
			return "", fmt.Errorf("reading built-in template %s: %w", name, err)
		}
		return string(b), nil
	}

	path := filepath.Join(l.Dir, name.File())
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &TemplateNotFoundError{Name: name, Path: path}
		}
		return "", fmt.Errorf("reading template %s: %w", path, err)
	}
	return string(b), nil
}

// Render loads and executes the named template with data.
func (l *Loader) Render(name Name, data Data) (string, error) {
	src, err := l.Source(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(string(name)).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Check loads every template, returning the first failure.
func (l *Loader) Check() error {
	for _, n := range Names {
		if err := l.CheckOne(n); err != nil {
			return err
		}
	}
	return nil
}

// CheckOne loads and parses a single template without executing it.
func (l *Loader) CheckOne(name Name) error {
	src, err := l.Source(name)
	if err != nil {
		return err
	}
	if _, err := template.New(string(name)).Parse(src); err != nil {
		return fmt.Errorf("parsing template %s: %w", name, err)
	}
	return nil
}
