// Package github fetches issue context from the GitHub REST API: the issue
// itself plus, on request, its comments, timeline and linked pull requests.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

const userAgent = "ai-issue-cli-mcp-server"

// MaxDiffLen caps the diff attached to a linked pull request.
const MaxDiffLen = 10000

// Optional sections of an issue context.
const (
	IncludeComments  = "comments"
	IncludeTimeline  = "timeline"
	IncludeLinkedPRs = "linked_prs"
)

var prRefPattern = regexp.MustCompile(`#(\d+)|pull/(\d+)`)

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error: %d - %s", e.Status, e.Body)
}

// Client talks to the GitHub REST API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient returns a client for the public API authenticated with
// GITHUB_TOKEN or GH_TOKEN when either is set.
func NewClient() *Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Issue is the basic issue record.
type Issue struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	State     string   `json:"state"`
	Labels    []string `json:"labels"`
	CreatedAt string   `json:"created_at"`
	Author    string   `json:"author"`
	URL       string   `json:"url"`
}

// Comment is one issue comment.
type Comment struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Event is one timeline event. Details is empty for event types that carry
// nothing worth showing.
type Event struct {
	Type      string `json:"type"`
	Actor     string `json:"actor"`
	CreatedAt string `json:"created_at"`
	Details   string `json:"details,omitempty"`
}

// Timeline holds the issue's events. Error is set instead of failing the
// whole context when the timeline endpoint is not accessible.
type Timeline struct {
	TotalEvents int     `json:"total_events"`
	Events      []Event `json:"events"`
	Error       string  `json:"error,omitempty"`
}

// PullRequest is a pull request referenced by the issue.
type PullRequest struct {
	Number       int      `json:"number"`
	Title        string   `json:"title"`
	State        string   `json:"state"`
	FilesChanged []string `json:"files_changed"`
	Diff         string   `json:"diff,omitempty"`
}

// IssueContext is what the get_issue_context tool returns.
type IssueContext struct {
	Issue
	Comments  []Comment     `json:"comments,omitempty"`
	Timeline  *Timeline     `json:"timeline,omitempty"`
	LinkedPRs []PullRequest `json:"linked_prs,omitempty"`
}

// Context fetches the issue and the optional sections named in include.
// Unknown include values are ignored.
func (c *Client) Context(ctx context.Context, repo string, number int, include []string) (*IssueContext, error) {
	if err := checkRepo(repo); err != nil {
		return nil, err
	}
	if number < 1 {
		return nil, fmt.Errorf("invalid issue number %d", number)
	}

	raw, err := c.get(ctx, issuePath(repo, number), "")
	if err != nil {
		return nil, err
	}
	out := &IssueContext{Issue: parseIssue(raw)}

	for _, section := range include {
		switch section {
		case IncludeComments:
			if out.Comments, err = c.Comments(ctx, repo, number); err != nil {
				return nil, err
			}
		case IncludeTimeline:
			out.Timeline = c.Timeline(ctx, repo, number)
		case IncludeLinkedPRs:
			if out.LinkedPRs, err = c.LinkedPRs(ctx, repo, number, out.Body); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Comments returns the issue's comments in API order.
func (c *Client) Comments(ctx context.Context, repo string, number int) ([]Comment, error) {
	raw, err := c.get(ctx, issuePath(repo, number)+"/comments", "")
	if err != nil {
		return nil, err
	}
	comments := []Comment{}
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		comments = append(comments, Comment{
			Author:    v.Get("user.login").String(),
			Body:      v.Get("body").String(),
			CreatedAt: v.Get("created_at").String(),
		})
		return true
	})
	return comments, nil
}

// Timeline returns the issue's typed events. A request failure is reported in
// Timeline.Error since the endpoint can need extra permissions.
func (c *Client) Timeline(ctx context.Context, repo string, number int) *Timeline {
	raw, err := c.get(ctx, issuePath(repo, number)+"/timeline", "")
	if err != nil {
		return &Timeline{Events: []Event{}, Error: err.Error()}
	}
	events := []Event{}
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		kind := v.Get("event").String()
		if kind == "" {
			return true
		}
		actor := v.Get("actor.login").String()
		if actor == "" {
			actor = "unknown"
		}
		events = append(events, Event{
			Type:      kind,
			Actor:     actor,
			CreatedAt: v.Get("created_at").String(),
			Details:   eventDetails(kind, v),
		})
		return true
	})
	return &Timeline{TotalEvents: len(events), Events: events}
}

// LinkedPRs collects pull requests cross-referenced in the timeline or
// mentioned in body, then fetches each one with its files and a truncated
// diff. References that turn out to be plain issues are skipped.
func (c *Client) LinkedPRs(ctx context.Context, repo string, number int, body string) ([]PullRequest, error) {
	raw, err := c.get(ctx, issuePath(repo, number)+"/timeline", "")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		if v.Get("event").String() == "cross-referenced" && v.Get("source.issue.pull_request").Exists() {
			if n := int(v.Get("source.issue.number").Int()); n > 0 {
				seen[n] = true
			}
		}
		return true
	})
	for _, m := range prRefPattern.FindAllStringSubmatch(body, -1) {
		ref := m[1]
		if ref == "" {
			ref = m[2]
		}
		if n, err := strconv.Atoi(ref); err == nil && n > 0 {
			seen[n] = true
		}
	}

	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	prs := []PullRequest{}
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pr, ok := c.pullRequest(ctx, repo, n)
		if ok {
			prs = append(prs, pr)
		}
	}
	return prs, nil
}

// pullRequest fetches one pull request. ok is false when the number does not
// name a pull request.
func (c *Client) pullRequest(ctx context.Context, repo string, number int) (PullRequest, bool) {
	path := fmt.Sprintf("/repos/%s/pulls/%d", repo, number)
	raw, err := c.get(ctx, path, "")
	if err != nil {
		return PullRequest{}, false
	}
	v := gjson.ParseBytes(raw)
	if !v.Get("merged_at").Exists() {
		return PullRequest{}, false
	}

	state := v.Get("state").String()
	if v.Get("merged_at").String() != "" {
		state = "merged"
	}
	pr := PullRequest{
		Number:       int(v.Get("number").Int()),
		Title:        v.Get("title").String(),
		State:        state,
		FilesChanged: []string{},
	}

	// file and diff failures leave the pull request without them
	files, err := c.get(ctx, path+"/files", "")
	if err != nil {
		return pr, true
	}
	gjson.ParseBytes(files).ForEach(func(_, f gjson.Result) bool {
		pr.FilesChanged = append(pr.FilesChanged, f.Get("filename").String())
		return true
	})
	if diff, err := c.get(ctx, path, "application/vnd.github.v3.diff"); err == nil {
		pr.Diff = truncateDiff(string(diff))
	}
	return pr, true
}

func (c *Client) get(ctx context.Context, path, accept string) ([]byte, error) {
	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func parseIssue(raw []byte) Issue {
	v := gjson.ParseBytes(raw)
	labels := []string{}
	for _, l := range v.Get("labels.#.name").Array() {
		labels = append(labels, l.String())
	}
	return Issue{
		Title:     v.Get("title").String(),
		Body:      v.Get("body").String(),
		State:     v.Get("state").String(),
		Labels:    labels,
		CreatedAt: v.Get("created_at").String(),
		Author:    v.Get("user.login").String(),
		URL:       v.Get("html_url").String(),
	}
}

func eventDetails(kind string, v gjson.Result) string {
	commit := v.Get("commit_id").String()
	switch kind {
	case "referenced":
		if commit != "" {
			return "Commit: " + shortSHA(commit)
		}
	case "closed":
		if commit != "" {
			return "Closed by commit: " + shortSHA(commit)
		}
		return "Closed"
	case "labeled", "unlabeled":
		return v.Get("label.name").String()
	case "cross-referenced":
		return v.Get("source.issue.html_url").String()
	}
	return ""
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func truncateDiff(diff string) string {
	if len(diff) <= MaxDiffLen {
		return diff
	}
	return fmt.Sprintf("%s\n\n... [diff truncated, total length: %d characters]", diff[:MaxDiffLen], len(diff))
}

func issuePath(repo string, number int) string {
	return fmt.Sprintf("/repos/%s/issues/%d", repo, number)
}

func checkRepo(repo string) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("repo must be owner/repo, got %q", repo)
	}
	return nil
}
