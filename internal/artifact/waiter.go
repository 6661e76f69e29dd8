package artifact

import (
	"context"
	"os"
	"time"
)

const (
	DefaultPollInterval     = 1 * time.Second
	DefaultProgressInterval = 5 * time.Second
)

// ProgressFunc receives the elapsed wait time at each progress tick.
type ProgressFunc func(elapsed time.Duration)

// Waiter polls the filesystem for an artifact to appear.
type Waiter struct {
	PollInterval     time.Duration
	ProgressInterval time.Duration

	// StablePolls, when > 0, additionally requires the file size to stay the
	// same across that many consecutive polls before the artifact counts as
	// written. Zero means bare existence is enough.
	StablePolls int
}

// NewWaiter returns a Waiter with the default 1s poll and 5s progress cadence.
func NewWaiter() *Waiter {
	return &Waiter{
		PollInterval:     DefaultPollInterval,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Wait blocks until path exists or timeout elapses. It returns true as soon as
// the artifact is present (immediately when it already exists) and false on
// timeout or context cancellation. Timing out is a normal outcome, not an
// error; the caller decides what it means.
func (w *Waiter) Wait(ctx context.Context, path string, timeout time.Duration, onProgress ProgressFunc) bool {
	if w.StablePolls <= 0 && Exists(path) {
		return true
	}

	poll := w.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	progressEvery := w.ProgressInterval
	if progressEvery <= 0 {
		progressEvery = DefaultProgressInterval
	}

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var lastProgress time.Duration
	stable := newStabilityTracker(w.StablePolls)
	if stable.observe(path) {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return stable.observe(path)
		case <-ticker.C:
			if stable.observe(path) {
				return true
			}
			elapsed := time.Since(start)
			if onProgress != nil && elapsed-lastProgress >= progressEvery {
				lastProgress = elapsed
				onProgress(elapsed)
			}
		}
	}
}

// stabilityTracker decides when an existing file counts as complete.
type stabilityTracker struct {
	required int
	lastSize int64
	seen     int
}

func newStabilityTracker(required int) *stabilityTracker {
	return &stabilityTracker{required: required, lastSize: -1}
}

func (s *stabilityTracker) observe(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.seen = 0
		s.lastSize = -1
		return false
	}
	if s.required <= 0 {
		return true
	}
	if info.Size() == s.lastSize {
		s.seen++
	} else {
		s.seen = 0
		s.lastSize = info.Size()
	}
	return s.seen >= s.required
}
