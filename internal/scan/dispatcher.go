package scan

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// DispatchConfig bounds the side effects of one run.
type DispatchConfig struct {
	// TaskCap is the per-run limit on auto-created tasks (top-K by urgency).
	TaskCap int

	// AlertCapPerCategory is the per-run, per-rule limit on created alerts.
	AlertCapPerCategory int

	// CriticalNotifyThreshold and WarningNotifyThreshold gate the single
	// per-run admin notification.
	CriticalNotifyThreshold int
	WarningNotifyThreshold  int
}

// DefaultDispatchConfig mirrors the dashboard's shipped limits.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		TaskCap:                 5,
		AlertCapPerCategory:     3,
		CriticalNotifyThreshold: 5,
		WarningNotifyThreshold:  10,
	}
}

// taskLead is the due-date lead time applied to auto-created tasks.
func taskLead(s Severity) time.Duration {
	switch s {
	case SeverityCritical:
		return 3 * 24 * time.Hour
	case SeverityWarning:
		return 7 * 24 * time.Hour
	default:
		return 14 * 24 * time.Hour
	}
}

func priorityFor(s Severity) string {
	switch s {
	case SeverityCritical:
		return PriorityHigh
	case SeverityWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Dispatcher converts ledger-approved issues into persisted alerts, tasks,
// and at most one admin notification per run. Every store call is
// individually fault-isolated: a failure is logged and counted, never
// propagated, so one broken write cannot starve more urgent conditions of
// their remaining dispatches.
type Dispatcher struct {
	ledger   Ledger
	alerts   AlertStore
	tasks    TaskStore
	notifier Notifier // nil disables notifications
	cfg      DispatchConfig
	logger   log.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. notifier may be nil.
func NewDispatcher(ledger Ledger, alerts AlertStore, tasks TaskStore, notifier Notifier, cfg DispatchConfig, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		ledger:   ledger,
		alerts:   alerts,
		tasks:    tasks,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch walks the urgency-ordered issue list and fills the summary's
// action counters. Issues are processed strictly in order, so the most
// urgent conditions are guaranteed action before any cap is reached. When
// the run context expires, remaining (lower-urgency) dispatches are skipped
// and the summary is marked partial.
//
// The snapshot was read before dispatch, so a condition can resolve in
// between (a human just renewed the license). Writing a now-stale alert is
// an accepted, bounded staleness window; the dispatcher does not re-validate
// entities.
func (d *Dispatcher) Dispatch(ctx context.Context, issues []Issue, summary *RunSummary, opts Options) {
	alertsByCategory := make(map[string]int)

	for i := range issues {
		issue := &issues[i]

		if ctx.Err() != nil {
			summary.Partial = true
			d.logger.Warn(ctx, "run budget expired, skipping remaining dispatches",
				"run_id", summary.RunID,
				"remaining", len(issues)-i,
			)
			break
		}

		key := issue.Key()

		var decision Decision
		var err error
		if opts.DryRun {
			decision, err = d.ledger.Peek(ctx, key, issue.Rank)
		} else {
			decision, err = d.ledger.Reserve(ctx, key, issue.Rank)
		}
		if err != nil {
			// Without a ledger answer we cannot guarantee at-most-once,
			// so suppress rather than risk a duplicate alert.
			summary.ErrorsCount++
			d.logger.Error(ctx, err, "ledger lookup failed, suppressing dispatch",
				"entity_id", key.EntityID, "rule", key.RuleID, "bucket", key.Bucket)
			continue
		}

		switch decision {
		case DecisionAlreadyHandled:
			summary.Suppressed++
			continue
		case DecisionEscalated:
			summary.Escalations++
		}

		if opts.DryRun {
			continue
		}

		if alertsByCategory[issue.RuleID] < d.cfg.AlertCapPerCategory {
			if d.createAlert(ctx, issue, key, summary) {
				alertsByCategory[issue.RuleID]++
			}
		} else {
			summary.Deferred++
			d.release(ctx, key)
		}

		if summary.TasksCreated < d.cfg.TaskCap {
			d.createTask(ctx, issue, summary)
		}
	}

	d.maybeNotify(ctx, summary, opts)
}

// createAlert reports whether an alert was persisted.
func (d *Dispatcher) createAlert(ctx context.Context, issue *Issue, key LedgerKey, summary *RunSummary) bool {
	a := &Alert{
		ID:         ulid.Make().String(),
		EntityType: string(issue.EntityType),
		EntityID:   issue.EntityID,
		AlertType:  issue.RuleID,
		Severity:   string(issue.Severity),
		Title:      issue.Title,
		Message:    issue.Message,
		DueDate:    issue.ComputedAt.AddDate(0, 0, issue.DaysDelta),
		CreatedAt:  d.now(),
	}

	if err := d.alerts.CreateAlert(ctx, a); err != nil {
		summary.ErrorsCount++
		d.logger.Error(ctx, err, "alert creation failed",
			"entity_id", issue.EntityID, "rule", issue.RuleID, "bucket", issue.Bucket)
		d.release(ctx, key)
		return false
	}

	if err := d.ledger.Attach(ctx, key, a.ID); err != nil {
		// The alert exists and the key is reserved; dedup still holds.
		d.logger.Error(ctx, err, "ledger attach failed",
			"alert_id", a.ID, "entity_id", issue.EntityID, "rule", issue.RuleID)
	}

	summary.AlertsCreated++
	return true
}

func (d *Dispatcher) createTask(ctx context.Context, issue *Issue, summary *RunSummary) {
	t := &Task{
		ID:              ulid.Make().String(),
		Title:           issue.Title,
		Description:     issue.Message,
		Priority:        priorityFor(issue.Severity),
		DueDate:         d.now().Add(taskLead(issue.Severity)),
		RelatedEntityID: issue.EntityID,
		AutoGenerated:   true,
		Status:          TaskStatusOpen,
		CreatedAt:       d.now(),
	}

	if err := d.tasks.CreateTask(ctx, t); err != nil {
		summary.ErrorsCount++
		d.logger.Error(ctx, err, "task creation failed",
			"entity_id", issue.EntityID, "rule", issue.RuleID)
		return
	}
	summary.TasksCreated++
}

// maybeNotify fires the single per-run admin notification when the run's
// severity totals cross the fleet-wide thresholds.
func (d *Dispatcher) maybeNotify(ctx context.Context, summary *RunSummary, opts Options) {
	if opts.DryRun || d.notifier == nil {
		return
	}
	critical := summary.BySeverity[SeverityCritical]
	warning := summary.BySeverity[SeverityWarning]
	if critical < d.cfg.CriticalNotifyThreshold && warning < d.cfg.WarningNotifyThreshold {
		return
	}

	if err := d.notifier.SendAdminNotification(ctx, summary); err != nil {
		summary.ErrorsCount++
		d.logger.Error(ctx, err, "admin notification failed", "run_id", summary.RunID)
		return
	}
	summary.CriticalNotificationSent = true
}

func (d *Dispatcher) release(ctx context.Context, key LedgerKey) {
	if err := d.ledger.Release(ctx, key); err != nil {
		d.logger.Error(ctx, err, "ledger release failed",
			"entity_id", key.EntityID, "rule", key.RuleID, "bucket", key.Bucket)
	}
}
