package scan

import (
	"fmt"
	"time"

	"github.com/linnemanlabs/warden/internal/domain"
)

// Severity classifies how urgent a detected condition is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// weight orders severities for sorting; higher is more urgent.
func (s Severity) weight() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Issue is the ephemeral result of evaluating one rule against one entity at
// scan time. Issues are never persisted standalone; they exist to drive
// dispatch and display within a single run.
type Issue struct {
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Label      string            `json:"label"`
	RuleID     string            `json:"rule_id"`
	DaysDelta  int               `json:"days_delta"`
	Severity   Severity          `json:"severity"`
	Bucket     string            `json:"bucket"`
	Rank       int               `json:"rank"` // threshold index, 0 = most urgent
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	ComputedAt time.Time         `json:"computed_at"`
}

// Key returns the deduplication ledger key for this issue.
func (i *Issue) Key() LedgerKey {
	return LedgerKey{EntityID: i.EntityID, RuleID: i.RuleID, Bucket: i.Bucket}
}

// LedgerKey identifies one distinct condition occurrence. At most one
// unresolved alert may exist per key at a time.
type LedgerKey struct {
	EntityID string
	RuleID   string
	Bucket   string
}

// String renders the canonical form used by key-value ledger backends.
func (k LedgerKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.EntityID, k.RuleID, k.Bucket)
}

// Decision is the ledger's verdict for an issue.
type Decision string

const (
	// DecisionNew means no prior entry exists; dispatch is approved.
	DecisionNew Decision = "new"

	// DecisionEscalated means a less urgent entry exists for the same
	// entity/rule; dispatch is approved and the ledger records the
	// more urgent bucket.
	DecisionEscalated Decision = "escalated"

	// DecisionAlreadyHandled means an entry at this or a more urgent bucket
	// already holds an unresolved alert; dispatch is suppressed.
	DecisionAlreadyHandled Decision = "already_handled"
)

// Alert is a persisted compliance alert created by the dispatcher.
type Alert struct {
	ID         string     `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	AlertType  string     `json:"alert_type"` // rule ID
	Severity   string     `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	DueDate    time.Time  `json:"due_date"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Task is a persisted follow-up work item created by the dispatcher.
type Task struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Priority        string    `json:"priority"`
	DueDate         time.Time `json:"due_date"`
	RelatedEntityID string    `json:"related_entity_id"`
	AutoGenerated   bool      `json:"auto_generated"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Task statuses and priorities as the upstream dashboard expects them.
const (
	TaskStatusOpen = "open"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// RunSummary is the aggregated outcome of one scan run.
type RunSummary struct {
	RunID                    string           `json:"run_id"`
	StartedAt                time.Time        `json:"started_at"`
	Duration                 float64          `json:"duration_seconds"`
	DryRun                   bool             `json:"dry_run"`
	Partial                  bool             `json:"partial"` // run budget expired before all dispatches
	IssuesFound              int              `json:"issues_found"`
	BySeverity               map[Severity]int `json:"by_severity"`
	ByRule                   map[string]int   `json:"by_rule"`
	AlertsCreated            int              `json:"alerts_created"`
	TasksCreated             int              `json:"tasks_created"`
	Escalations              int              `json:"escalations"`
	Suppressed               int              `json:"suppressed"`
	Deferred                 int              `json:"deferred"` // approved but over a per-run cap
	CriticalNotificationSent bool             `json:"critical_notification_sent"`
	ErrorsCount              int              `json:"errors_count"`
	EvaluationErrors         int              `json:"evaluation_errors"`
	Narrative                string           `json:"narrative,omitempty"`
}

// Options controls a single scan run.
type Options struct {
	// DryRun evaluates and consults the ledger without reserving keys or
	// creating alerts, tasks, or notifications.
	DryRun bool
}
