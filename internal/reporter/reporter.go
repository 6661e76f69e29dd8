package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jiaweitao001/ai-issue-cli/internal/orchestrator"
	"github.com/jiaweitao001/ai-issue-cli/internal/state"
	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
)

// Reporter renders persisted run state for the status command.
type Reporter struct {
	State     *state.RunState
	StartTime time.Time
}

// New creates a new Reporter.
func New(st *state.RunState) *Reporter {
	return &Reporter{
		State:     st,
		StartTime: st.StartedAt,
	}
}

// order returns task ids in admission order, followed by any sessions the
// order list doesn't know about.
func (r *Reporter) order() []string {
	seen := make(map[string]bool, len(r.State.Order))
	ids := append([]string(nil), r.State.Order...)
	for _, id := range ids {
		seen[id] = true
	}
	var extra []string
	for id := range r.State.Sessions {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

// PrintStatus writes a terminal-friendly status table.
func (r *Reporter) PrintStatus(w io.Writer) {
	counts := r.State.Counts()
	total := len(r.State.Sessions)
	done := counts[state.StatusCompleted] + counts[state.StatusFailed] + counts[state.StatusCancelled]

	fmt.Fprintf(w, "%s %s %s — %d of %d issues finished",
		ui.BoldCyan("🧩 ai-issue"),
		ui.Dim(shortID(r.State.RunID)),
		statusText(r.State.Status),
		done, total)
	if n := counts[state.StatusFailed]; n > 0 {
		fmt.Fprintf(w, " %s", ui.Red(fmt.Sprintf("(%d failed)", n)))
	}
	fmt.Fprintf(w, " %s\n\n", ui.Dim(fmt.Sprintf("[%s elapsed]", r.runDuration())))

	for _, id := range r.order() {
		r.printTask(w, id)
	}
	if r.State.LogPath != "" {
		fmt.Fprintf(w, "\n  %s %s\n", ui.Dim("log:"), r.State.LogPath)
	}
}

func (r *Reporter) printTask(w io.Writer, id string) {
	ss := r.State.GetSession(id)

	status := string(state.StatusPending)
	phase := ""
	dur := ""
	if ss != nil {
		status = string(ss.Status)
		phase = ss.Phase
		switch ss.Status {
		case state.StatusCompleted:
			if ss.StartedAt != nil && ss.FinishedAt != nil {
				dur = ui.Dim(fmt.Sprintf("[%s]", ss.FinishedAt.Sub(*ss.StartedAt).Truncate(time.Second)))
			}
		case state.StatusRunning:
			if ss.StartedAt != nil {
				dur = ui.Cyan(fmt.Sprintf("[running %s]", time.Since(*ss.StartedAt).Truncate(time.Second)))
			}
		case state.StatusFailed:
			if ss.StartedAt != nil && ss.FinishedAt != nil {
				dur = ui.Red(fmt.Sprintf("[failed after %s]", ss.FinishedAt.Sub(*ss.StartedAt).Truncate(time.Second)))
			}
		case state.StatusCancelled:
			dur = ui.Dim("[cancelled]")
		}
	}

	kind := ""
	if ss != nil && ss.Classification != "" {
		kind = ss.Classification
	}

	fmt.Fprintf(w, "    %s %-10s %-10s %-12s %s\n", ui.StatusIcon(status), ui.BoldMagenta("#"+id), phase, kind, dur)
	if ss != nil && ss.Error != "" {
		fmt.Fprintf(w, "        %s\n", ui.Red(truncate(ss.Error, 100)))
	}
	if ss != nil {
		for _, warn := range ss.Warnings {
			fmt.Fprintf(w, "        %s\n", ui.Yellow("⚠️  "+truncate(warn, 100)))
		}
	}
}

// JSON returns machine-readable status.
func (r *Reporter) JSON() ([]byte, error) {
	type taskStatus struct {
		TaskID         string   `json:"task_id"`
		Status         string   `json:"status"`
		Phase          string   `json:"phase,omitempty"`
		Classification string   `json:"classification,omitempty"`
		Error          string   `json:"error,omitempty"`
		Warnings       []string `json:"warnings,omitempty"`
		SolutionPath   string   `json:"solution_path,omitempty"`
	}

	type output struct {
		RunID       string       `json:"run_id"`
		Status      string       `json:"status"`
		Concurrency int          `json:"concurrency"`
		Elapsed     string       `json:"elapsed"`
		LogPath     string       `json:"log_path,omitempty"`
		Tasks       []taskStatus `json:"tasks"`
	}

	o := output{
		RunID:       r.State.RunID,
		Status:      r.State.Status,
		Concurrency: r.State.Concurrency,
		Elapsed:     r.runDuration().String(),
		LogPath:     r.State.LogPath,
		Tasks:       []taskStatus{},
	}
	for _, id := range r.order() {
		ts := taskStatus{TaskID: id, Status: string(state.StatusPending)}
		if ss := r.State.GetSession(id); ss != nil {
			ts.Status = string(ss.Status)
			ts.Phase = ss.Phase
			ts.Classification = ss.Classification
			ts.Error = ss.Error
			ts.Warnings = ss.Warnings
			ts.SolutionPath = ss.SolutionPath
		}
		o.Tasks = append(o.Tasks, ts)
	}

	return json.MarshalIndent(o, "", "  ")
}

// runDuration uses FinishedAt for finished runs and time.Since otherwise.
func (r *Reporter) runDuration() time.Duration {
	if r.State.FinishedAt != nil {
		return r.State.FinishedAt.Sub(r.StartTime).Truncate(time.Second)
	}
	return time.Since(r.StartTime).Truncate(time.Second)
}

// PrintBatchSummary writes the end-of-batch statistics. The output is also
// returned as a string for reuse (e.g. as context for the narrative summary).
func PrintBatchSummary(w io.Writer, res *orchestrator.Result) string {
	var b strings.Builder
	mw := io.MultiWriter(w, &b)

	status := state.RunCompleted
	if !res.OK() {
		status = state.RunFailed
	}

	fmt.Fprintf(mw, "\n%s\n", ui.Dim(ui.Rule()))
	fmt.Fprintf(mw, "%s\n", ui.BoldCyan("📊 Batch Processing Statistics"))
	fmt.Fprintf(mw, "%s\n\n", ui.Dim(ui.Rule()))
	fmt.Fprintf(mw, "Status:       %s\n", statusText(status))
	fmt.Fprintf(mw, "Duration:     %s\n", ui.Bold(res.Duration().Truncate(time.Second)))
	fmt.Fprintf(mw, "Total:        %d\n", res.Attempted)
	fmt.Fprintf(mw, "Success:      %s\n", ui.Green(len(res.Succeeded)))
	if len(res.Failed) > 0 {
		fmt.Fprintf(mw, "Failed:       %s\n", ui.Red(len(res.Failed)))
	} else {
		fmt.Fprintf(mw, "Failed:       %d\n", 0)
	}
	fmt.Fprintf(mw, "Concurrency:  %d\n", res.Concurrency)

	if len(res.Failed) > 0 {
		fmt.Fprintf(mw, "\n%s\n", ui.BoldRed("❌ Failed Issues:"))
		for _, f := range res.Failed {
			where := f.Cause.Kind
			if f.Cause.Phase != "" {
				where = f.Cause.Phase + "/" + f.Cause.Kind
			}
			fmt.Fprintf(mw, "   %s %s %s\n", ui.Red("- #"+f.TaskID), ui.Dim("["+where+"]"), ui.Red(f.Cause.Message))
		}
		fmt.Fprintf(mw, "\nℹ️  Detailed error logs: %s\n", res.LogPath)
	}

	if len(res.Succeeded) > 0 {
		fmt.Fprintf(mw, "\n%s\n", ui.BoldGreen("✅ Successful Issues:"))
		for _, id := range res.Succeeded {
			fmt.Fprintf(mw, "   %s\n", ui.Green("- #"+id))
			for _, warn := range res.Warnings[id] {
				fmt.Fprintf(mw, "     %s\n", ui.Yellow("⚠️  "+warn))
			}
		}
	}
	fmt.Fprintln(mw)

	return b.String()
}

func statusText(status string) string {
	switch status {
	case state.RunCompleted:
		return ui.BoldGreen("✅ completed")
	case state.RunFailed:
		return ui.BoldRed("❌ failed")
	case state.RunCancelled:
		return ui.Yellow("🚫 cancelled")
	default:
		return ui.Cyan("⏳ " + status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
