// Package mcpserver exposes issue context to the agent as an MCP tool. The
// agent loads it through the capability manifest passed with
// --additional-mcp-config.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jiaweitao001/ai-issue-cli/internal/agent"
	"github.com/jiaweitao001/ai-issue-cli/internal/github"
)

// ToolName is the single tool this server registers.
const ToolName = "get_issue_context"

// Fetcher loads issue context. *github.Client implements it.
type Fetcher interface {
	Context(ctx context.Context, repo string, number int, include []string) (*github.IssueContext, error)
}

// New returns an MCP server with the issue context tool registered.
func New(f Fetcher, version string) *server.MCPServer {
	s := server.NewMCPServer(
		agent.IssueFetcherServer,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(Tool(), Handler(f))
	return s
}

// Tool is the get_issue_context definition.
func Tool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription(`Fetch structured information about a GitHub issue.

Returns the title, body, state, labels, author and URL. Optionally adds the
comments, the timeline events and the linked pull requests with their changed
files and diff.

Use it while researching an issue to get the full context, and while
evaluating a solution to compare it with the pull request that fixed it.`),
		mcp.WithString("repo",
			mcp.Required(),
			mcp.Description(`Repository as owner/repo, for example "hashicorp/terraform-provider-azurerm"`),
		),
		mcp.WithNumber("number",
			mcp.Required(),
			mcp.Description("Issue number"),
		),
		mcp.WithArray("include",
			mcp.Description("Extra sections: comments, timeline, linked_prs"),
			mcp.WithStringItems(),
		),
	)
}

// Handler returns the tool handler. Fetch failures are tool errors so the
// agent sees the message instead of a protocol failure.
func Handler(f Fetcher) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repo, err := req.RequireString("repo")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		number, err := req.RequireFloat("number")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if number != float64(int(number)) {
			return mcp.NewToolResultError(fmt.Sprintf("number must be an integer, got %v", number)), nil
		}
		include := req.GetStringSlice("include", nil)

		issue, err := f.Context(ctx, repo, int(number), include)
		if err != nil {
			return mcp.NewToolResultError("Error fetching issue context: " + err.Error()), nil
		}
		data, err := json.MarshalIndent(issue, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode issue context: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
