package artifact

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/reports")

	cases := map[Kind]string{
		KindResearch:   "/reports/task-30340-research.md",
		KindSolution:   "/reports/task-30340-analysis-and-solution.md",
		KindEvaluation: "/reports/task-30340-evaluation.md",
	}
	for kind, want := range cases {
		if got := l.Path("30340", kind); got != filepath.FromSlash(want) {
			t.Errorf("Path(%s) = %q, want %q", kind, got, want)
		}
	}
	if got := l.AgentLogPath("1", "research"); got != filepath.FromSlash("/reports/logs/task-1-research.log") {
		t.Errorf("AgentLogPath = %q", got)
	}
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	l := NewLayout(dir)
	if err := os.WriteFile(l.Path("9", KindResearch), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap := l.Snapshot("9")
	if len(snap) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(snap))
	}
	if !snap[0].Exists || snap[0].Kind != KindResearch {
		t.Errorf("research should exist: %+v", snap[0])
	}
	if snap[1].Exists || snap[2].Exists {
		t.Errorf("solution and evaluation should be missing: %+v", snap[1:])
	}
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	if err := Remove(filepath.Join(t.TempDir(), "nope.md")); err != nil {
		t.Errorf("expected nil for missing file, got %v", err)
	}
}

func fastWaiter() *Waiter {
	return &Waiter{PollInterval: 10 * time.Millisecond, ProgressInterval: 30 * time.Millisecond}
}

func TestWait_PreExistingReturnsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.md")
	if err := os.WriteFile(path, []byte("done"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := &Waiter{PollInterval: time.Hour, ProgressInterval: time.Hour}
	start := time.Now()
	if !w.Wait(context.Background(), path, time.Hour, nil) {
		t.Fatal("expected true for pre-existing file")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected zero-delay return, took %v", elapsed)
	}
}

func TestWait_TimeoutReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.md")

	start := time.Now()
	if fastWaiter().Wait(context.Background(), path, 80*time.Millisecond, nil) {
		t.Fatal("expected false when the file never appears")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("returned before timeout: %v", elapsed)
	}
}

func TestWait_FileAppearsDuringWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.md")
	go func() {
		time.Sleep(40 * time.Millisecond)
		os.WriteFile(path, []byte("content"), 0o644)
	}()

	if !fastWaiter().Wait(context.Background(), path, 2*time.Second, nil) {
		t.Fatal("expected true once the file appears")
	}
}

func TestWait_ProgressCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.md")
	var calls atomic.Int32

	fastWaiter().Wait(context.Background(), path, 200*time.Millisecond, func(elapsed time.Duration) {
		if elapsed <= 0 {
			t.Errorf("elapsed should be positive, got %v", elapsed)
		}
		calls.Add(1)
	})

	n := calls.Load()
	if n == 0 {
		t.Fatal("expected at least one progress callback")
	}
	// 200ms / 30ms progress cadence; polling every 10ms must not flood
	if n > 8 {
		t.Errorf("progress callback fired %d times, expected coarse cadence", n)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.md")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if fastWaiter().Wait(ctx, path, time.Hour, nil) {
		t.Fatal("expected false for cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled wait should return promptly")
	}
}

func TestWait_StablePollsRequiresUnchangedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "growing.md")
	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := fastWaiter()
	w.StablePolls = 2
	start := time.Now()
	if !w.Wait(context.Background(), path, 2*time.Second, nil) {
		t.Fatal("expected stable file to be accepted")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("stable check should take at least two polls")
	}
}
