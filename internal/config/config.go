// Package config resolves ai-issue settings from built-in defaults,
// ~/.ai-issue/config.yaml and AI_ISSUE_* environment variables, in that order.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the per-user directory holding the config file and, by default,
	// the reports.
	Dir      = ".ai-issue"
	FileName = "config.yaml"

	envPrefix = "AI_ISSUE_"

	DefaultModel        = "claude-sonnet-4.5"
	DefaultLogLevel     = "info"
	DefaultAgentBin     = "copilot"
	DefaultIssueBaseURL = "https://github.com/hashicorp/terraform-provider-azurerm/issues"
	DefaultTimeout      = 60 * time.Second
)

const fileHeader = `# ai-issue configuration
# Values here are overridden by AI_ISSUE_* environment variables and by flags.
`

var issueURLPattern = regexp.MustCompile(`^https?://.+/issues$`)

// Duration is a time.Duration stored as a string such as "90s" in YAML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

// Config holds the resolved settings.
type Config struct {
	RepoPath     string `yaml:"repo_path"`
	ReportPath   string `yaml:"report_path"`
	Model        string `yaml:"model"`
	LogLevel     string `yaml:"log_level"`
	IssueBaseURL string `yaml:"issue_base_url"`
	AgentBin     string `yaml:"agent_bin"`
	TemplateDir  string `yaml:"template_dir,omitempty"`
	ManifestDir  string `yaml:"manifest_dir,omitempty"`

	ResearchTimeout   Duration `yaml:"research_timeout"`
	SolutionTimeout   Duration `yaml:"solution_timeout"`
	EvaluationTimeout Duration `yaml:"evaluation_timeout"`
}

// HomeDir returns ~/.ai-issue.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, Dir), nil
}

// DefaultPath returns ~/.ai-issue/config.yaml.
func DefaultPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	reportPath := filepath.Join(Dir, "reports")
	if dir, err := HomeDir(); err == nil {
		reportPath = filepath.Join(dir, "reports")
	}
	return &Config{
		ReportPath:        reportPath,
		Model:             DefaultModel,
		LogLevel:          DefaultLogLevel,
		IssueBaseURL:      DefaultIssueBaseURL,
		AgentBin:          DefaultAgentBin,
		ResearchTimeout:   Duration{DefaultTimeout},
		SolutionTimeout:   Duration{DefaultTimeout},
		EvaluationTimeout: Duration{DefaultTimeout},
	}
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path (a missing file is fine) over the
// defaults and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFile reads only the file layer over the defaults. config set uses it
// so environment overrides are not written back to disk.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, f := range fields {
		v, ok := lookup(f.env())
		if !ok || v == "" {
			continue
		}
		if err := f.set(c, v); err != nil {
			return fmt.Errorf("config: %s: %w", f.env(), err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.RepoPath = expandHome(strings.TrimSpace(c.RepoPath))
	c.ReportPath = expandHome(strings.TrimSpace(c.ReportPath))
	c.TemplateDir = expandHome(strings.TrimSpace(c.TemplateDir))
	c.ManifestDir = expandHome(strings.TrimSpace(c.ManifestDir))
	c.IssueBaseURL = strings.TrimSpace(c.IssueBaseURL)
}

// Save writes the config to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, append([]byte(fileHeader), data...), 0o644)
}

// Validate reports every problem that would stop a run.
func (c *Config) Validate() []error {
	var errs []error

	switch {
	case c.RepoPath == "":
		errs = append(errs, errors.New("repoPath is not set"))
	case !isDir(c.RepoPath):
		errs = append(errs, fmt.Errorf("repoPath does not exist: %s", c.RepoPath))
	default:
		cmd := exec.Command("git", "rev-parse", "--git-dir")
		cmd.Dir = c.RepoPath
		if err := cmd.Run(); err != nil {
			errs = append(errs, fmt.Errorf("repoPath is not a git repository: %s", c.RepoPath))
		}
	}

	switch {
	case c.IssueBaseURL == "":
		errs = append(errs, errors.New("issueBaseUrl is not set"))
	case !issueURLPattern.MatchString(c.IssueBaseURL):
		errs = append(errs, fmt.Errorf("issueBaseUrl format invalid (should end with /issues): %s", c.IssueBaseURL))
	}

	if c.ReportPath == "" {
		errs = append(errs, errors.New("reportPath is not set"))
	} else if err := checkWritable(c.ReportPath); err != nil {
		errs = append(errs, fmt.Errorf("reportPath is not writable: %s", c.ReportPath))
	}

	return errs
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	return os.Remove(testFile)
}

// field maps a user-facing key to its env var and accessors.
type field struct {
	key string
	get func(*Config) string
	set func(*Config, string) error
}

// env derives the variable name from the key, e.g. repoPath -> AI_ISSUE_REPO_PATH.
// issueBaseUrl keeps the historical AI_ISSUE_BASE_URL.
func (f field) env() string {
	if f.key == "issueBaseUrl" {
		return envPrefix + "BASE_URL"
	}
	var b strings.Builder
	for i, r := range f.key {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return envPrefix + strings.ToUpper(b.String())
}

func stringField(key string, ptr func(*Config) *string) field {
	return field{
		key: key,
		get: func(c *Config) string { return *ptr(c) },
		set: func(c *Config, v string) error { *ptr(c) = v; return nil },
	}
}

func durationField(key string, ptr func(*Config) *Duration) field {
	return field{
		key: key,
		get: func(c *Config) string { return ptr(c).String() },
		set: func(c *Config, v string) error {
			d, err := parseDuration(v)
			if err != nil {
				return err
			}
			ptr(c).Duration = d
			return nil
		},
	}
}

var fields = []field{
	stringField("repoPath", func(c *Config) *string { return &c.RepoPath }),
	stringField("reportPath", func(c *Config) *string { return &c.ReportPath }),
	stringField("model", func(c *Config) *string { return &c.Model }),
	stringField("logLevel", func(c *Config) *string { return &c.LogLevel }),
	stringField("issueBaseUrl", func(c *Config) *string { return &c.IssueBaseURL }),
	stringField("agentBin", func(c *Config) *string { return &c.AgentBin }),
	stringField("templateDir", func(c *Config) *string { return &c.TemplateDir }),
	stringField("manifestDir", func(c *Config) *string { return &c.ManifestDir }),
	durationField("researchTimeout", func(c *Config) *Duration { return &c.ResearchTimeout }),
	durationField("solutionTimeout", func(c *Config) *Duration { return &c.SolutionTimeout }),
	durationField("evaluationTimeout", func(c *Config) *Duration { return &c.EvaluationTimeout }),
}

func lookupField(key string) (field, error) {
	for _, f := range fields {
		if f.key == key {
			return f, nil
		}
	}
	return field{}, fmt.Errorf("unknown config key %q (available: %s)", key, strings.Join(Keys(), ", "))
}

// Keys lists the settable keys in display order.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) (string, error) {
	f, err := lookupField(key)
	if err != nil {
		return "", err
	}
	return f.env(), nil
}

// Get returns the value of key as a string.
func (c *Config) Get(key string) (string, error) {
	f, err := lookupField(key)
	if err != nil {
		return "", err
	}
	return f.get(c), nil
}

// Set parses value into key.
func (c *Config) Set(key, value string) error {
	f, err := lookupField(key)
	if err != nil {
		return err
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	c.normalize()
	return nil
}

// Entries returns every key and value in Keys order.
func (c *Config) Entries() [][2]string {
	out := make([][2]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, [2]string{f.key, f.get(c)})
	}
	return out
}

// parseDuration accepts Go durations ("90s", "2m") and bare seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive: %s", s)
		}
		return d, nil
	}
	var secs int
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil || fmt.Sprint(secs) != s {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	return time.Duration(secs) * time.Second, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
