package claude

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient("", ""); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	c, err := NewClient("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != anthropic.ModelClaudeSonnet4_5 {
		t.Errorf("expected Sonnet 4.5 by default, got %q", c.model)
	}

	c, err = NewClient("sk-test", "claude-custom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(c.model) != "claude-custom" {
		t.Errorf("expected custom model, got %q", c.model)
	}
}

func TestBuildBatchPrompt(t *testing.T) {
	prompt := buildBatchPrompt("Total: 2\nSuccess: 2", map[string]string{
		"31316": "## 1. Problem Analysis\nGuidance only",
		"30340": "## 1. Problem Analysis\nAdd field",
	})

	if !strings.Contains(prompt, "Total: 2") {
		t.Error("prompt should contain the batch summary")
	}
	if !strings.Contains(prompt, "Add field") || !strings.Contains(prompt, "Guidance only") {
		t.Error("prompt should contain every report")
	}
	if strings.Index(prompt, "Issue #30340") > strings.Index(prompt, "Issue #31316") {
		t.Error("reports should be ordered by issue id")
	}
}

func TestReportHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	head, err := ReportHead(path, 2)
	if err != nil {
		t.Fatalf("ReportHead: %v", err)
	}
	if head != "one\ntwo" {
		t.Errorf("expected first two lines, got %q", head)
	}

	if _, err := ReportHead(filepath.Join(t.TempDir(), "missing.md"), 2); err == nil {
		t.Error("expected error for missing report")
	}
}
