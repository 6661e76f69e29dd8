// Package logging is the console logger handed down the call chain. It
// carries the debug and silent toggles explicitly instead of reading
// process-wide state.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
)

// Logger writes emoji-prefixed, colored lines. A nil *Logger discards
// everything, so components can log unconditionally.
type Logger struct {
	out    io.Writer
	errOut io.Writer
	debug  bool
	silent bool
	prefix string
	mu     *sync.Mutex
}

// Option customizes a Logger.
type Option func(*Logger)

// WithDebug enables Debug output.
func WithDebug(on bool) Option {
	return func(l *Logger) { l.debug = on }
}

// WithSilent drops Info, Success and Plain output. Warnings and errors are
// always written.
func WithSilent(on bool) Option {
	return func(l *Logger) { l.silent = on }
}

// WithWriters overrides stdout/stderr, mainly for tests.
func WithWriters(out, errOut io.Writer) Option {
	return func(l *Logger) {
		l.out = out
		l.errOut = errOut
	}
}

// New creates a Logger writing to stdout/stderr.
func New(opts ...Option) *Logger {
	l := &Logger{
		out:    os.Stdout,
		errOut: os.Stderr,
		mu:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Task returns a logger that prefixes every line with the task's colored id.
// The returned logger shares the parent's writers and lock.
func (l *Logger) Task(taskID string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.prefix = ui.TaskPrefix(taskID) + " "
	return &child
}

// Quiet returns a copy with silent forced on.
func (l *Logger) Quiet() *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.silent = true
	return &child
}

// Verbose returns a copy with debug output forced on.
func (l *Logger) Verbose() *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.debug = true
	return &child
}

// DebugEnabled reports whether Debug lines are written.
func (l *Logger) DebugEnabled() bool {
	return l != nil && l.debug
}

// Out returns the writer used for regular output, or io.Discard when silent.
func (l *Logger) Out() io.Writer {
	if l == nil || l.silent {
		return io.Discard
	}
	return l.out
}

// Plain writes the message without decoration.
func (l *Logger) Plain(format string, args ...any) {
	if l == nil || l.silent {
		return
	}
	l.write(l.out, "", format, args...)
}

// Info writes an informational line.
func (l *Logger) Info(format string, args ...any) {
	if l == nil || l.silent {
		return
	}
	l.write(l.out, ui.Blue("ℹ️  "), format, args...)
}

// Success writes a green success line.
func (l *Logger) Success(format string, args ...any) {
	if l == nil || l.silent {
		return
	}
	l.write(l.out, "", "%s", ui.Green("✅ "+fmt.Sprintf(format, args...)))
}

// Warn writes a yellow warning line to stderr.
func (l *Logger) Warn(format string, args ...any) {
	if l == nil {
		return
	}
	l.write(l.errOut, "", "%s", ui.Yellow("⚠️  "+fmt.Sprintf(format, args...)))
}

// Error writes a red error line to stderr.
func (l *Logger) Error(format string, args ...any) {
	if l == nil {
		return
	}
	l.write(l.errOut, "", "%s", ui.Red("❌ "+fmt.Sprintf(format, args...)))
}

// Debug writes a dim line when debug is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	l.write(l.errOut, "", "%s", ui.Dim("🐛 "+fmt.Sprintf(format, args...)))
}

func (l *Logger) write(w io.Writer, icon, format string, args ...any) {
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(w, "%s%s%s\n", l.prefix, icon, line)
}
