package ui

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
)

// StreamFormatter turns agent process output into prefixed, human-readable
// lines on dest. Lines that are JSON stream events are summarised; any other
// line is passed through as-is. It implements io.Writer.
type StreamFormatter struct {
	prefix string
	dest   io.Writer
	mu     *sync.Mutex
	buf    []byte
}

// NewStreamFormatter creates a StreamFormatter that prefixes output with [#taskID].
// mu serialises writes to dest across formatters sharing the same terminal.
func NewStreamFormatter(taskID string, dest io.Writer, mu *sync.Mutex) *StreamFormatter {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &StreamFormatter{
		prefix: TaskPrefix(taskID) + " ",
		dest:   dest,
		mu:     mu,
	}
}

func (sf *StreamFormatter) Write(p []byte) (int, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	sf.buf = append(sf.buf, p...)
	for {
		idx := bytes.IndexByte(sf.buf, '\n')
		if idx == -1 {
			break
		}
		line := string(bytes.TrimRight(sf.buf[:idx], "\r"))
		sf.buf = sf.buf[idx+1:]
		sf.processLine(line)
	}
	return len(p), nil
}

// Flush writes out any trailing partial line.
func (sf *StreamFormatter) Flush() {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if len(sf.buf) == 0 {
		return
	}
	line := string(sf.buf)
	sf.buf = nil
	sf.processLine(line)
}

func (sf *StreamFormatter) processLine(line string) {
	if line == "" {
		return
	}
	if !gjson.Valid(line) || !gjson.Get(line, "type").Exists() {
		sf.writeLine(line)
		return
	}

	switch gjson.Get(line, "type").String() {
	case "assistant":
		sf.processAssistant(line)
	case "result":
		if text := gjson.Get(line, "result").String(); text != "" {
			sf.writeLine(Dim("🏁 " + truncate(text, 120)))
		}
	}
	// "user" (tool_result), "system" and other events are too noisy
}

func (sf *StreamFormatter) processAssistant(line string) {
	content := gjson.Get(line, "message.content")
	if !content.Exists() {
		return
	}

	content.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			if text := item.Get("text").String(); text != "" {
				sf.writeLine(fmt.Sprintf("💬 %s", text))
			}
		case "tool_use":
			sf.processToolUse(item)
		}
		return true
	})
}

func (sf *StreamFormatter) processToolUse(item gjson.Result) {
	name := item.Get("name").String()
	input := item.Get("input")

	var display string
	switch name {
	case "Bash", "shell":
		if desc := input.Get("description").String(); desc != "" {
			display = "🔧 $ " + desc
		} else {
			display = "🔧 $ " + truncate(input.Get("command").String(), 80)
		}
	case "Read", "view":
		display = "📖 Reading " + input.Get("file_path").String()
	case "Write", "create":
		display = "✏️  Writing " + input.Get("file_path").String()
	case "Edit", "str_replace":
		display = "✏️  Editing " + input.Get("file_path").String()
	case "Grep", "Glob":
		display = "🔍 Searching " + input.Get("pattern").String()
	default:
		display = "🔧 " + name
	}

	sf.writeLine(Dim(display))
}

func (sf *StreamFormatter) writeLine(text string) {
	fmt.Fprintf(sf.dest, "  %s%s\n", sf.prefix, text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
