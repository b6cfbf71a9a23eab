// Package slack sends scan-run admin notifications to Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/scan"
)

const (
	maxNarrativeLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier posts run summaries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, sends are no-ops.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// SendAdminNotification posts one run summary to the configured webhook.
// The dispatcher calls this at most once per run.
func (n *Notifier) SendAdminNotification(ctx context.Context, s *scan.RunSummary) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(s))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "admin notification sent", "run_id", s.RunID)
	return nil
}

func buildMessage(s *scan.RunSummary) map[string]any {
	blocks := []map[string]any{
		headerBlock(s),
		{"type": "divider"},
		fieldsBlock(s),
	}
	if s.Narrative != "" {
		blocks = append(blocks, map[string]any{"type": "divider"}, narrativeBlock(s))
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(s))
	return map[string]any{"blocks": blocks}
}

func headerBlock(s *scan.RunSummary) map[string]any {
	title := "Compliance Scan"
	if s.Partial {
		title = "Compliance Scan (partial)"
	}
	text := fmt.Sprintf("%s %s: %d issues", severityEmoji(s), title, s.IssuesFound)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(s *scan.RunSummary) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Critical:* %d", s.BySeverity[scan.SeverityCritical])},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Warning:* %d", s.BySeverity[scan.SeverityWarning])},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Alerts created:* %d", s.AlertsCreated)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Tasks created:* %d", s.TasksCreated)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Suppressed:* %d", s.Suppressed)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Errors:* %d", s.ErrorsCount)},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func narrativeBlock(s *scan.RunSummary) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Summary*\n\n%s", truncate(s.Narrative, maxNarrativeLen)),
		},
	}
}

func contextBlock(s *scan.RunSummary) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("warden • run %s • %s", s.RunID, s.StartedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(s *scan.RunSummary) string {
	switch {
	case s.BySeverity[scan.SeverityCritical] > 0:
		return "\U0001f534" // red circle
	case s.BySeverity[scan.SeverityWarning] > 0:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
