package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jiaweitao001/ai-issue-cli/internal/agent"
	"github.com/jiaweitao001/ai-issue-cli/internal/config"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"30340", "#31316", " 7 "})
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "30340" || ids[1] != "31316" || ids[2] != "7" {
		t.Errorf("unexpected ids %v", ids)
	}

	for _, bad := range [][]string{{"../etc"}, {""}, {"a/b"}, {"1", "#1"}} {
		if _, err := parseIDs(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("AI_ISSUE_MODEL", "env-model")
	t.Setenv("AI_ISSUE_REPO_PATH", "/env/repo")
	t.Setenv("AI_ISSUE_REPORT_PATH", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: file-model\nreport_path: /file/reports\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	flagConfig, flagModel, flagRepo = path, "flag-model", ""
	t.Cleanup(func() { flagConfig, flagModel, flagRepo = "", "", "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Model != "flag-model" {
		t.Errorf("flag should win, got %q", cfg.Model)
	}
	if cfg.RepoPath != "/env/repo" {
		t.Errorf("env should apply when no flag is given, got %q", cfg.RepoPath)
	}
	if cfg.ReportPath != "/file/reports" {
		t.Errorf("file value should apply, got %q", cfg.ReportPath)
	}
}

func TestRequireValid(t *testing.T) {
	cfg := config.Defaults()
	cfg.IssueBaseURL = "https://example.com/pulls"
	cfg.ReportPath = t.TempDir()

	err := requireValid(cfg)
	if err == nil {
		t.Fatal("expected configuration errors")
	}
	for _, want := range []string{"repoPath is not set", "should end with /issues", "ai-issue config show"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestInitManifest(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := config.Defaults()

	path, wrote, err := initManifest(cfg, false)
	if err != nil || !wrote {
		t.Fatalf("initManifest: wrote=%v err=%v", wrote, err)
	}
	if want := filepath.Join(home, config.Dir, "manifests"); cfg.ManifestDir != want {
		t.Errorf("expected manifest dir %s, got %s", want, cfg.ManifestDir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), agent.IssueFetcherServer) || !strings.Contains(string(data), mcpBinary) {
		t.Errorf("manifest should start the issue fetcher:\n%s", data)
	}

	resolver := agent.DirResolver{Dir: cfg.ManifestDir}
	for _, phase := range []string{"research", "solution", "guidance", "evaluation"} {
		if got := resolver.Resolve(phase); got != path {
			t.Errorf("%s should resolve to the default manifest, got %q", phase, got)
		}
	}

	if _, wrote, err := initManifest(cfg, false); err != nil || wrote {
		t.Errorf("second init should keep the manifest: wrote=%v err=%v", wrote, err)
	}
}
