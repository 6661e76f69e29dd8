package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewAndLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, []string{"1", "2", "3"}, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.RunID == "" {
		t.Error("expected a run id")
	}
	if s.Status != RunRunning {
		t.Errorf("expected status running, got %s", s.Status)
	}
	if len(s.Sessions) != 3 || s.Sessions["2"].Status != StatusPending {
		t.Errorf("expected three pending sessions, got %v", s.Sessions)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RunID != s.RunID {
		t.Errorf("loaded run id mismatch: %s", loaded.RunID)
	}
	if loaded.Concurrency != 2 {
		t.Errorf("loaded concurrency mismatch: %d", loaded.Concurrency)
	}
	if len(loaded.Order) != 3 || loaded.Order[0] != "1" {
		t.Errorf("loaded order mismatch: %v", loaded.Order)
	}
}

func TestUpdateSession(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, []string{"30340"}, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now()
	ss := &SessionState{
		Status:    StatusRunning,
		Phase:     "RESEARCH",
		StartedAt: &now,
	}
	if err := s.UpdateSession("30340", ss); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got := s.GetSession("30340")
	if got == nil || got.Status != StatusRunning || got.Phase != "RESEARCH" {
		t.Errorf("unexpected session: %+v", got)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.GetSession("30340").Status != StatusRunning {
		t.Error("session update was not persisted")
	}
}

func TestCounts(t *testing.T) {
	s, err := New(t.TempDir(), []string{"a", "b", "c"}, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.UpdateSession("a", &SessionState{Status: StatusCompleted})
	s.UpdateSession("b", &SessionState{Status: StatusFailed})

	counts := s.Counts()
	if counts[StatusCompleted] != 1 || counts[StatusFailed] != 1 || counts[StatusPending] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestExistsAndClean(t *testing.T) {
	dir := t.TempDir()

	if Exists(dir) {
		t.Error("expected Exists()=false before creation")
	}
	if _, err := New(dir, nil, 1); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir) {
		t.Error("expected Exists()=true after creation")
	}
	if err := Clean(dir); err != nil {
		t.Fatal(err)
	}
	if Exists(dir) {
		t.Error("expected Exists()=false after Clean()")
	}
}

func TestSetStatusStampsFinish(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, []string{"1"}, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetLogPath("/reports/logs/batch.log")
	s.SetStatus(RunCompleted)

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Status != RunCompleted {
		t.Errorf("expected completed, got %s", loaded.Status)
	}
	if loaded.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if loaded.LogPath != "/reports/logs/batch.log" {
		t.Errorf("unexpected log path %q", loaded.LogPath)
	}
}

func TestArchiveAndListHistory(t *testing.T) {
	dir := t.TempDir()

	names, err := ListHistory(dir)
	if err != nil {
		t.Fatalf("ListHistory (empty): %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty history, got %v", names)
	}

	first, _ := New(dir, []string{"1"}, 1)
	first.StartedAt = time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	if err := first.Archive(); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	second, _ := New(dir, []string{"2"}, 1)
	second.StartedAt = time.Date(2026, 2, 20, 11, 0, 0, 0, time.UTC)
	if err := second.Archive(); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	names, err = ListHistory(dir)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %v", names)
	}

	newest, err := LoadArchived(dir, names[0])
	if err != nil {
		t.Fatalf("LoadArchived: %v", err)
	}
	if newest.RunID != second.RunID {
		t.Errorf("expected newest run first, got %s", newest.RunID)
	}
	if _, err := os.Stat(filepath.Join(Dir(dir), historyDir, names[1])); err != nil {
		t.Errorf("older archive missing: %v", err)
	}
}
