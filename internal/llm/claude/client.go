// Package claude generates optional narrative summaries of scan runs via
// the Claude API. It is an enrichment collaborator only: the deterministic
// scan and dispatch never depend on it.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/warden/internal/scan"
)

const (
	responseTokens = 1024
	maxIssueLines  = 20
)

// Client implements the scan.Enricher interface against the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude enrichment client.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Narrative produces a short operational summary of one completed run.
func (c *Client) Narrative(ctx context.Context, s *scan.RunSummary, issues []scan.Issue) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: responseTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(s, issues))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("claude: empty response")
	}
	return out.String(), nil
}

const systemPrompt = `You are the compliance assistant for an insurance agency dashboard.
You receive the results of an automated compliance scan and write a short
narrative for the agency operations channel: what needs attention first,
any notable clusters (one agent, one carrier, one state), and a one-line
outlook. Three short paragraphs maximum. Plain text, no markdown headers.`

// buildPrompt renders the run summary and the most urgent issues. Issues
// arrive already urgency-sorted, so truncation keeps the top of the list.
func buildPrompt(s *scan.RunSummary, issues []scan.Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scan run %s found %d issues (critical=%d warning=%d info=%d).\n",
		s.RunID, s.IssuesFound,
		s.BySeverity[scan.SeverityCritical],
		s.BySeverity[scan.SeverityWarning],
		s.BySeverity[scan.SeverityInfo],
	)
	fmt.Fprintf(&b, "Actions: %d alerts created, %d tasks created, %d suppressed as already handled, %d errors.\n\n",
		s.AlertsCreated, s.TasksCreated, s.Suppressed, s.ErrorsCount)

	b.WriteString("Most urgent issues:\n")
	for i, issue := range issues {
		if i >= maxIssueLines {
			fmt.Fprintf(&b, "... and %d more\n", len(issues)-maxIssueLines)
			break
		}
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Severity, issue.Message)
	}

	b.WriteString("\nWrite the narrative.")
	return b.String()
}
