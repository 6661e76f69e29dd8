package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultManifest is the fallback manifest name when a phase has none.
const DefaultManifest = "default"

// IssueFetcherServer is the MCP server name written into the default manifest.
const IssueFetcherServer = "github-issue-fetcher"

// ManifestResolver maps a phase name to a tool manifest path. An empty
// result means no manifest is passed to the agent.
type ManifestResolver interface {
	Resolve(phase string) string
}

// DirResolver looks up <Dir>/<phase>.json, then <Dir>/default.json.
type DirResolver struct {
	Dir string

	// Debugf, if set, is told when Dir holds no manifest for a phase.
	Debugf func(format string, args ...any)
}

func (r DirResolver) Resolve(phase string) string {
	if r.Dir == "" {
		return ""
	}
	for _, name := range []string{phase, DefaultManifest} {
		if name == "" {
			continue
		}
		path := filepath.Join(r.Dir, name+".json")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	if r.Debugf != nil {
		r.Debugf("no %s.json or %s.json in %s, running %s without MCP servers", phase, DefaultManifest, r.Dir, phase)
	}
	return ""
}

// MCPServer is one entry of a manifest's mcpServers map.
type MCPServer struct {
	Type    string            `json:"type"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
	Tools   []string          `json:"tools"`
}

// Manifest is the file passed to the agent with --additional-mcp-config.
type Manifest struct {
	MCPServers map[string]MCPServer `json:"mcpServers"`
}

// DefaultManifestFor returns a manifest that starts the issue fetcher from
// command with every tool enabled.
func DefaultManifestFor(command string) Manifest {
	return Manifest{MCPServers: map[string]MCPServer{
		IssueFetcherServer: {
			Type:    "local",
			Command: command,
			Args:    []string{},
			Tools:   []string{"*"},
		},
	}}
}

// WriteManifest writes m to <dir>/<name>.json. An existing file is kept unless
// overwrite is set. It returns the path and whether the file was written.
func WriteManifest(dir, name string, m Manifest, overwrite bool) (string, bool, error) {
	path := filepath.Join(dir, name+".json")
	if _, err := os.Stat(path); err == nil && !overwrite {
		return path, false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", false, fmt.Errorf("write manifest: %w", err)
	}
	return path, true, nil
}
