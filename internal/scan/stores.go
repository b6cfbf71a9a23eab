package scan

import "context"

// AlertStore persists compliance alerts. Creation is append-only; the
// dispatcher never updates an alert after writing it.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *Alert) error
	ListOpenAlerts(ctx context.Context) ([]Alert, error)

	// ResolveAlert marks an alert resolved. Returns false when the alert
	// does not exist or is already resolved.
	ResolveAlert(ctx context.Context, id string) (bool, error)
}

// TaskStore persists auto-generated follow-up tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
}

// RunStore persists run summaries for later retrieval.
type RunStore interface {
	PutRun(ctx context.Context, s *RunSummary) error
	GetRun(ctx context.Context, id string) (*RunSummary, bool, error)
}

// Notifier is the external messaging collaborator. SendAdminNotification is
// called at most once per run, and only when the fleet-wide severity
// thresholds are exceeded.
type Notifier interface {
	SendAdminNotification(ctx context.Context, s *RunSummary) error
}

// Enricher produces an optional narrative summary of a completed run. It is
// strictly an enrichment collaborator: it runs after deterministic dispatch
// and its failures never affect run correctness or counts.
type Enricher interface {
	Narrative(ctx context.Context, s *RunSummary, issues []Issue) (string, error)
}
