// Package state persists the progress of the current batch run so the status
// command can report on it from another process.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const stateDir = ".ai-issue"
const stateFile = "state.json"
const historyDir = "history"

// SessionStatus represents the status of one task in a run.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// RunState is the persistent state of a batch run.
type RunState struct {
	RunID       string                   `json:"run_id"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
	Status      string                   `json:"status"`
	Concurrency int                      `json:"concurrency"`
	Order       []string                 `json:"order"`
	LogPath     string                   `json:"log_path,omitempty"`
	Sessions    map[string]*SessionState `json:"sessions"`

	mu   sync.Mutex `json:"-"`
	path string     `json:"-"`
}

// SessionState is the persistent state of a single task.
type SessionState struct {
	Status         SessionStatus `json:"status"`
	Phase          string        `json:"phase,omitempty"`
	Classification string        `json:"classification,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	Error          string        `json:"error,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	SolutionPath   string        `json:"solution_path,omitempty"`
}

// Dir returns the state directory under a report directory.
func Dir(reportDir string) string {
	return filepath.Join(reportDir, stateDir)
}

// Path returns the state file path under a report directory.
func Path(reportDir string) string {
	return filepath.Join(Dir(reportDir), stateFile)
}

// New creates a RunState for ids, with every task pending, and persists it.
func New(reportDir string, ids []string, concurrency int) (*RunState, error) {
	if err := os.MkdirAll(Dir(reportDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &RunState{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		Status:      RunRunning,
		Concurrency: concurrency,
		Order:       append([]string(nil), ids...),
		Sessions:    make(map[string]*SessionState, len(ids)),
		path:        Path(reportDir),
	}
	for _, id := range ids {
		s.Sessions[id] = &SessionState{Status: StatusPending}
	}

	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the current run state from disk.
func Load(reportDir string) (*RunState, error) {
	return loadFile(Path(reportDir))
}

func loadFile(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]*SessionState)
	}
	s.path = path
	return &s, nil
}

// Exists checks if a state file exists.
func Exists(reportDir string) bool {
	_, err := os.Stat(Path(reportDir))
	return err == nil
}

// Save persists the current state to disk.
func (s *RunState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// SetLogPath records the batch journal location and saves.
func (s *RunState) SetLogPath(path string) error {
	s.mu.Lock()
	s.LogPath = path
	s.mu.Unlock()
	return s.Save()
}

// SetStatus updates the overall run status and saves. Terminal statuses also
// stamp FinishedAt.
func (s *RunState) SetStatus(status string) error {
	s.mu.Lock()
	s.Status = status
	if status != RunRunning {
		now := time.Now()
		s.FinishedAt = &now
	}
	s.mu.Unlock()
	return s.Save()
}

// UpdateSession updates a session's state and saves.
func (s *RunState) UpdateSession(taskID string, ss *SessionState) error {
	s.mu.Lock()
	s.Sessions[taskID] = ss
	s.mu.Unlock()
	return s.Save()
}

// GetSession returns the session state for a task.
func (s *RunState) GetSession(taskID string) *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sessions[taskID]
}

// Counts returns the number of sessions in each status.
func (s *RunState) Counts() map[SessionStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[SessionStatus]int)
	for _, ss := range s.Sessions {
		counts[ss.Status]++
	}
	return counts
}

// Archive copies the current state into the history directory, keyed by run
// start time and id, so later runs don't lose it.
func (s *RunState) Archive() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s, "", "  ")
	name := s.StartedAt.UTC().Format("20060102-150405") + "-" + s.RunID + ".json"
	dir := filepath.Join(filepath.Dir(s.path), historyDir)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// ListHistory returns archived run files, newest first.
func ListHistory(reportDir string) ([]string, error) {
	dir := filepath.Join(Dir(reportDir), historyDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// LoadArchived reads one archived run by file name, as returned by
// ListHistory.
func LoadArchived(reportDir, name string) (*RunState, error) {
	return loadFile(filepath.Join(Dir(reportDir), historyDir, name))
}

// Clean removes the state directory.
func Clean(reportDir string) error {
	return os.RemoveAll(Dir(reportDir))
}
