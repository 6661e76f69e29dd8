package claude

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic SDK for Claude API calls.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a Claude client. apiKey defaults to ANTHROPIC_API_KEY env.
// model defaults to Claude Sonnet.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	inner := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := anthropic.ModelClaudeSonnet4_5
	if model != "" {
		m = anthropic.Model(model)
	}

	return &Client{inner: inner, model: m}, nil
}

const summariseBatchPrompt = `You are a maintainer triaging the output of an automated issue-resolution batch.

You will receive:
1. The batch statistics (issues processed, successes, failures with their causes).
2. The opening lines of each generated solution report.

Produce a concise narrative summary covering:
- What was proposed for each issue, or why it failed.
- Which issues were answered with guidance rather than a code change.
- Anything a reviewer should look at first.

Keep it concise, 1-2 sentences per issue and a short overall paragraph.
Do not repeat report content verbatim.
`

// buildBatchPrompt assembles the user message for SummariseBatch. Reports are
// emitted in issue-id order so the prompt is deterministic.
func buildBatchPrompt(batchSummary string, reports map[string]string) string {
	var b strings.Builder
	b.WriteString("## Batch Summary\n\n")
	b.WriteString(batchSummary)
	b.WriteString("\n\n## Solution Reports\n\n")

	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "### Issue #%s\n```markdown\n%s\n```\n\n", id, reports[id])
	}
	return b.String()
}

// SummariseBatch sends the batch summary and the head of each solution report
// to Claude and returns a human-readable narrative.
func (c *Client) SummariseBatch(ctx context.Context, batchSummary string, reports map[string]string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		System: []anthropic.TextBlockParam{
			{Text: summariseBatchPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildBatchPrompt(batchSummary, reports))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return strings.TrimSpace(text), nil
}

// ReportHead returns at most maxLines lines from the start of a report.
func ReportHead(path string, maxLines int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() && len(lines) < maxLines {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
