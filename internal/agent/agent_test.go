package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeAgent writes an executable shell script that records its arguments to
// argsFile and then runs body.
func fakeAgent(t *testing.T, body string) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script agents are not supported on windows")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	bin = filepath.Join(dir, "agent.sh")
	script := "#!/bin/sh\nfor a in \"$@\"; do printf '%s\\n' \"$a\" >> " + argsFile + "; done\n" + body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func newTestProcess(t *testing.T, bin string) *Process {
	p := NewProcess("test-model", t.TempDir(), t.TempDir())
	p.Bin = bin
	p.Echo = &bytes.Buffer{}
	return p
}

func TestArgs(t *testing.T) {
	p := &Process{Model: "m1", RepoPath: "/repo", ReportPath: "/reports"}
	got := p.Args(Request{Phase: "research"}, "do it")
	want := []string{
		"--model", "m1",
		"--allow-all-tools",
		"--add-dir", "/repo",
		"--add-dir", "/reports",
		"--log-level", "info",
		"--no-color",
		"-p", "do it",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("args mismatch\n got: %v\nwant: %v", got, want)
	}

	got = p.Args(Request{Phase: "research", Model: "override"}, "x")
	if got[1] != "override" {
		t.Errorf("request model should override, got %q", got[1])
	}
}

func TestArgs_Manifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "default.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &Process{Model: "m", Manifests: DirResolver{Dir: dir}}
	args := strings.Join(p.Args(Request{Phase: "solution"}, "x"), " ")
	if !strings.Contains(args, "--additional-mcp-config @"+filepath.Join(dir, "default.json")) {
		t.Errorf("expected default manifest flag, got %s", args)
	}
}

func TestDirResolver(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := DirResolver{Dir: dir}
	if got := r.Resolve("research"); got != "" {
		t.Errorf("expected no manifest, got %q", got)
	}

	write("default.json")
	if got := r.Resolve("research"); got != filepath.Join(dir, "default.json") {
		t.Errorf("expected default fallback, got %q", got)
	}

	write("research.json")
	if got := r.Resolve("research"); got != filepath.Join(dir, "research.json") {
		t.Errorf("expected phase manifest, got %q", got)
	}

	if got := (DirResolver{}).Resolve("research"); got != "" {
		t.Errorf("empty dir should resolve nothing, got %q", got)
	}
}

func TestDirResolver_DebugWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	var msgs []string
	r := DirResolver{Dir: dir, Debugf: func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}}

	if got := r.Resolve("evaluation"); got != "" {
		t.Fatalf("expected no manifest, got %q", got)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "evaluation.json") || !strings.Contains(msgs[0], dir) {
		t.Errorf("expected one debug line naming the dir, got %v", msgs)
	}

	if _, _, err := WriteManifest(dir, DefaultManifest, DefaultManifestFor("ai-issue-mcp"), false); err != nil {
		t.Fatal(err)
	}
	r.Resolve("evaluation")
	if len(msgs) != 1 {
		t.Errorf("no debug line expected once default.json exists, got %v", msgs)
	}
}

func TestWriteManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "manifests")

	path, wrote, err := WriteManifest(dir, DefaultManifest, DefaultManifestFor("/usr/local/bin/ai-issue-mcp"), false)
	if err != nil || !wrote {
		t.Fatalf("write: wrote=%v err=%v", wrote, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v\n%s", err, data)
	}
	srv, ok := m.MCPServers[IssueFetcherServer]
	if !ok || srv.Command != "/usr/local/bin/ai-issue-mcp" || srv.Type != "local" {
		t.Errorf("unexpected server entry: %+v", m.MCPServers)
	}

	_, wrote, err = WriteManifest(dir, DefaultManifest, DefaultManifestFor("other"), false)
	if err != nil || wrote {
		t.Errorf("existing manifest should be kept: wrote=%v err=%v", wrote, err)
	}
	_, wrote, err = WriteManifest(dir, DefaultManifest, DefaultManifestFor("other"), true)
	if err != nil || !wrote {
		t.Errorf("overwrite should rewrite: wrote=%v err=%v", wrote, err)
	}
}

func TestInvoke_Success(t *testing.T) {
	bin, argsFile := fakeAgent(t, `echo "working on it"`)
	p := newTestProcess(t, bin)
	logPath := filepath.Join(t.TempDir(), "logs", "task-1-research.log")

	err := p.Invoke(context.Background(), Request{TaskID: "1", Phase: "research", Prompt: "hello", LogPath: logPath})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	args := readArgs(t, argsFile)
	if args[len(args)-2] != "-p" || args[len(args)-1] != "hello" {
		t.Errorf("expected inline prompt as last args, got %v", args)
	}

	logged, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logged), "working on it") {
		t.Errorf("expected agent output in log, got %q", logged)
	}
	if echo := p.Echo.(*bytes.Buffer).String(); !strings.Contains(echo, "working on it") {
		t.Errorf("expected agent output echoed, got %q", echo)
	}
}

func TestInvoke_SilentSuppressesEcho(t *testing.T) {
	bin, _ := fakeAgent(t, `echo "noisy"`)
	p := newTestProcess(t, bin)
	logPath := filepath.Join(t.TempDir(), "agent.log")

	if err := p.Invoke(context.Background(), Request{TaskID: "1", Phase: "research", Prompt: "x", Silent: true, LogPath: logPath}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if echo := p.Echo.(*bytes.Buffer).String(); echo != "" {
		t.Errorf("silent invoke echoed %q", echo)
	}
	if logged, _ := os.ReadFile(logPath); !strings.Contains(string(logged), "noisy") {
		t.Errorf("silent invoke should still log output, got %q", logged)
	}
}

func TestInvoke_NonZeroExit(t *testing.T) {
	bin, _ := fakeAgent(t, "exit 3")
	p := newTestProcess(t, bin)

	err := p.Invoke(context.Background(), Request{TaskID: "7", Phase: "solution", Prompt: "x", Silent: true})
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if agentErr.ExitCode != 3 || agentErr.Phase != "solution" || agentErr.TaskID != "7" {
		t.Errorf("unexpected error fields: %+v", agentErr)
	}
}

func TestInvoke_SpawnFailure(t *testing.T) {
	p := newTestProcess(t, filepath.Join(t.TempDir(), "does-not-exist"))

	err := p.Invoke(context.Background(), Request{TaskID: "1", Phase: "research", Prompt: "x", Silent: true})
	var agentErr *Error
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if agentErr.ExitCode != -1 {
		t.Errorf("expected exit code -1 for spawn failure, got %d", agentErr.ExitCode)
	}
}

func TestInvoke_CancelledContextDoesNotSpawn(t *testing.T) {
	bin, argsFile := fakeAgent(t, "true")
	p := newTestProcess(t, bin)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Invoke(ctx, Request{TaskID: "1", Phase: "research", Prompt: "x", Silent: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(argsFile); statErr == nil {
		t.Error("agent should not have been spawned")
	}
}

func promptFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "ai-issue-prompt-*.md"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestInvoke_LargePromptUsesTempFile(t *testing.T) {
	tmp := t.TempDir()
	// The script copies the referenced prompt file so the test can inspect it
	// after the invoker has removed it.
	bin, argsFile := fakeAgent(t, `f=$(echo "$*" | sed -n 's/.*Read the file \([^ ]*\) and.*/\1/p'); cp "$f" "`+tmp+`/seen"`)
	p := newTestProcess(t, bin)
	p.TempDir = tmp
	p.MaxInlinePrompt = 10

	prompt := strings.Repeat("large prompt ", 10)
	if err := p.Invoke(context.Background(), Request{TaskID: "1", Phase: "research", Prompt: prompt, Silent: true}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	args := readArgs(t, argsFile)
	if strings.Contains(strings.Join(args, " "), "large prompt") {
		t.Error("large prompt should not be passed inline")
	}
	seen, err := os.ReadFile(filepath.Join(tmp, "seen"))
	if err != nil {
		t.Fatalf("agent did not see prompt file: %v", err)
	}
	if string(seen) != prompt {
		t.Errorf("prompt file content mismatch: %q", seen)
	}
	if left := promptFiles(t, tmp); len(left) != 0 {
		t.Errorf("prompt file not removed after success: %v", left)
	}
}

func TestInvoke_TempFileRemovedOnFailure(t *testing.T) {
	tmp := t.TempDir()
	bin, _ := fakeAgent(t, "exit 1")
	p := newTestProcess(t, bin)
	p.TempDir = tmp
	p.MaxInlinePrompt = 1

	if err := p.Invoke(context.Background(), Request{TaskID: "1", Phase: "research", Prompt: "too long", Silent: true}); err == nil {
		t.Fatal("expected failure")
	}
	if left := promptFiles(t, tmp); len(left) != 0 {
		t.Errorf("prompt file not removed after failure: %v", left)
	}

	p.Bin = filepath.Join(tmp, "missing-bin")
	if err := p.Invoke(context.Background(), Request{TaskID: "1", Phase: "research", Prompt: "too long", Silent: true}); err == nil {
		t.Fatal("expected spawn failure")
	}
	if left := promptFiles(t, tmp); len(left) != 0 {
		t.Errorf("prompt file not removed after spawn error: %v", left)
	}
}
