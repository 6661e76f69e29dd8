package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range Keys() {
		env, _ := EnvVar(k)
		t.Setenv(env, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Model != DefaultModel || cfg.LogLevel != "info" || cfg.AgentBin != "copilot" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ResearchTimeout.Duration != 60*time.Second {
		t.Errorf("expected 60s research timeout, got %v", cfg.ResearchTimeout)
	}
	if !strings.HasSuffix(cfg.ReportPath, filepath.Join(".ai-issue", "reports")) {
		t.Errorf("unexpected report path %q", cfg.ReportPath)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IssueBaseURL != DefaultIssueBaseURL {
		t.Errorf("expected default base URL, got %q", cfg.IssueBaseURL)
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	content := `repo_path: /from/file
model: file-model
research_timeout: 90s
solution_timeout: "120"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AI_ISSUE_MODEL", "env-model")
	t.Setenv("AI_ISSUE_BASE_URL", "https://example.com/o/r/issues")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RepoPath != "/from/file" {
		t.Errorf("file value not applied: %q", cfg.RepoPath)
	}
	if cfg.Model != "env-model" {
		t.Errorf("env should override file, got %q", cfg.Model)
	}
	if cfg.IssueBaseURL != "https://example.com/o/r/issues" {
		t.Errorf("AI_ISSUE_BASE_URL not applied: %q", cfg.IssueBaseURL)
	}
	if cfg.ResearchTimeout.Duration != 90*time.Second || cfg.SolutionTimeout.Duration != 120*time.Second {
		t.Errorf("timeouts not parsed: %v %v", cfg.ResearchTimeout, cfg.SolutionTimeout)
	}
	if cfg.EvaluationTimeout.Duration != DefaultTimeout {
		t.Errorf("unset timeout should keep default, got %v", cfg.EvaluationTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unset key should keep default, got %q", cfg.LogLevel)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("research_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for bad duration")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := Defaults()
	if err := cfg.Set("repoPath", "/repo"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("evaluationTimeout", "5m"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "evaluation_timeout: 5m0s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.RepoPath != "/repo" || loaded.EvaluationTimeout.Duration != 5*time.Minute {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestGetSetKeys(t *testing.T) {
	cfg := Defaults()

	if err := cfg.Set("model", "gpt-5"); err != nil {
		t.Fatal(err)
	}
	if v, _ := cfg.Get("model"); v != "gpt-5" {
		t.Errorf("expected gpt-5, got %q", v)
	}
	if v, _ := cfg.Get("researchTimeout"); v != "1m0s" {
		t.Errorf("expected 1m0s, got %q", v)
	}

	if err := cfg.Set("bogus", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := cfg.Get("bogus"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := cfg.Set("solutionTimeout", "-1s"); err == nil {
		t.Error("expected error for negative duration")
	}

	if len(Keys()) != len(cfg.Entries()) {
		t.Error("Entries should cover every key")
	}
}

func TestEnvVar(t *testing.T) {
	tests := map[string]string{
		"repoPath":     "AI_ISSUE_REPO_PATH",
		"reportPath":   "AI_ISSUE_REPORT_PATH",
		"logLevel":     "AI_ISSUE_LOG_LEVEL",
		"issueBaseUrl": "AI_ISSUE_BASE_URL",
		"agentBin":     "AI_ISSUE_AGENT_BIN",
		"templateDir":  "AI_ISSUE_TEMPLATE_DIR",
		"manifestDir":  "AI_ISSUE_MANIFEST_DIR",
	}
	for key, want := range tests {
		if got, _ := EnvVar(key); got != want {
			t.Errorf("EnvVar(%s) = %s, want %s", key, got, want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("AI_ISSUE_LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("AI_ISSUE_LOG_LEVEL") })

	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AI_ISSUE_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected .env value, got %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.RepoPath = ""
	cfg.IssueBaseURL = "https://example.com/pulls"
	cfg.ReportPath = t.TempDir()

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 problems, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "repoPath is not set") {
		t.Errorf("unexpected first error: %v", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "should end with /issues") {
		t.Errorf("unexpected second error: %v", errs[1])
	}

	cfg.RepoPath = filepath.Join(t.TempDir(), "missing")
	cfg.IssueBaseURL = DefaultIssueBaseURL
	errs = cfg.Validate()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "does not exist") {
		t.Errorf("expected missing repo error, got %v", errs)
	}

	cfg.RepoPath = t.TempDir()
	errs = cfg.Validate()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "not a git repository") {
		t.Errorf("expected non-git error, got %v", errs)
	}
}

func TestValidate_GitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	if out, err := exec.Command("git", "init", repo).CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}

	cfg := Defaults()
	cfg.RepoPath = repo
	cfg.ReportPath = filepath.Join(t.TempDir(), "reports")
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", errs)
	}
	if _, err := os.Stat(filepath.Join(cfg.ReportPath, ".write-test")); !os.IsNotExist(err) {
		t.Error("write test file should be removed")
	}
}
