// Command ai-issue-mcp serves the get_issue_context tool over stdio for the
// agent. GITHUB_TOKEN or GH_TOKEN authenticates API calls when set.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jiaweitao001/ai-issue-cli/internal/github"
	"github.com/jiaweitao001/ai-issue-cli/internal/mcpserver"
)

var version = "dev"

func main() {
	s := mcpserver.New(github.NewClient(), version)

	// stdout carries the protocol
	fmt.Fprintln(os.Stderr, "GitHub Issue Fetcher MCP Server running on stdio")
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "ai-issue-mcp: %v\n", err)
		os.Exit(1)
	}
}
