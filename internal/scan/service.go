package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/domain"
)

const enrichTimeout = 30 * time.Second

// Deps are the collaborators a Service needs. Notifier, Runs, Enricher, and
// Metrics are optional.
type Deps struct {
	Reader   domain.Reader
	Catalog  Catalog
	Ledger   Ledger
	Alerts   AlertStore
	Tasks    TaskStore
	Notifier Notifier
	Runs     RunStore
	Enricher Enricher
	Logger   log.Logger
	Metrics  *Metrics
}

// Config tunes per-run behavior.
type Config struct {
	Dispatch DispatchConfig

	// RunBudget bounds one run. On expiry the dispatcher stops issuing
	// further dispatches and the run returns a partial summary instead of
	// failing. Zero disables the budget.
	RunBudget time.Duration
}

// Service is the business boundary for scan operations. One Run call is the
// engine's entire external surface: scan, dedup, dispatch, summarize.
type Service struct {
	reader     domain.Reader
	catalog    Catalog
	ledger     Ledger
	alerts     AlertStore
	dispatcher *Dispatcher
	runs       RunStore
	enricher   Enricher
	logger     log.Logger
	metrics    *Metrics
	budget     time.Duration
	now        func() time.Time
}

// NewService wires a Service and its internal dispatcher.
func NewService(d Deps, c Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		reader:     d.Reader,
		catalog:    d.Catalog,
		ledger:     d.Ledger,
		alerts:     d.Alerts,
		dispatcher: NewDispatcher(d.Ledger, d.Alerts, d.Tasks, d.Notifier, c.Dispatch, logger),
		runs:       d.Runs,
		enricher:   d.Enricher,
		logger:     logger,
		metrics:    d.Metrics,
		budget:     c.RunBudget,
		now:        time.Now,
	}
}

// Run executes one scan: read snapshot, evaluate, dedup, dispatch, tally.
//
// Only a failure to read an entire entity collection aborts the run. All
// per-item failures (bad dates, store write errors, notifier errors) are
// absorbed into the summary, so a run with partial failures still returns a
// RunSummary whose ErrorsCount distinguishes it from a clean one.
//
// Concurrent runs are safe: correctness rests on the ledger's atomic
// per-key check-and-set, not on any run-level lock.
func (s *Service) Run(ctx context.Context, opts Options) (*RunSummary, []Issue, error) {
	start := s.now()
	runID := ulid.Make().String()

	L := s.logger.With("run_id", runID, "dry_run", opts.DryRun)

	if s.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	snap, err := s.readSnapshot(ctx)
	if err != nil {
		s.metrics.observeReadFailure()
		L.Error(ctx, err, "scan aborted: collection read failed")
		return nil, nil, fmt.Errorf("read entity collections: %w", err)
	}

	issues, stats := Scan(ctx, snap, s.catalog, start, L)

	summary := &RunSummary{
		RunID:            runID,
		StartedAt:        start,
		DryRun:           opts.DryRun,
		IssuesFound:      len(issues),
		BySeverity:       stats.BySeverity,
		ByRule:           stats.ByRule,
		EvaluationErrors: stats.EvaluationErrors,
	}

	s.dispatcher.Dispatch(ctx, issues, summary, opts)

	summary.Duration = time.Since(start).Seconds()

	s.enrich(ctx, summary, issues, opts)

	if s.runs != nil {
		// Persist outside the run budget; the run itself already happened.
		if err := s.runs.PutRun(context.WithoutCancel(ctx), summary); err != nil {
			L.Error(ctx, err, "failed to persist run summary")
		}
	}

	s.metrics.observeRun(summary)

	L.Info(ctx, "scan complete",
		"issues", summary.IssuesFound,
		"alerts_created", summary.AlertsCreated,
		"tasks_created", summary.TasksCreated,
		"suppressed", summary.Suppressed,
		"escalations", summary.Escalations,
		"deferred", summary.Deferred,
		"errors", summary.ErrorsCount,
		"evaluation_errors", summary.EvaluationErrors,
		"partial", summary.Partial,
		"notified", summary.CriticalNotificationSent,
		"duration", summary.Duration,
	)

	return summary, issues, nil
}

// GetRun retrieves a stored run summary by ID.
func (s *Service) GetRun(ctx context.Context, id string) (*RunSummary, bool, error) {
	if s.runs == nil {
		return nil, false, nil
	}
	return s.runs.GetRun(ctx, id)
}

// ListOpenAlerts lists unresolved alerts.
func (s *Service) ListOpenAlerts(ctx context.Context) ([]Alert, error) {
	return s.alerts.ListOpenAlerts(ctx)
}

// ResolveAlert marks an alert resolved and releases its ledger entry, so a
// condition that is still active re-raises a fresh alert on the next scan.
func (s *Service) ResolveAlert(ctx context.Context, id string) (bool, error) {
	ok, err := s.alerts.ResolveAlert(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := s.ledger.ReleaseAlert(ctx, id); err != nil {
		s.logger.Error(ctx, err, "ledger release on resolve failed", "alert_id", id)
	}
	return true, nil
}

// readSnapshot bulk-lists every tracked collection. Any single failure is
// fatal to the run: scanning a partial world would mistake missing data for
// healthy data.
func (s *Service) readSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var err error

	if snap.Agents, err = s.reader.ListAgents(ctx); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if snap.Licenses, err = s.reader.ListLicenses(ctx); err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	if snap.Contracts, err = s.reader.ListContracts(ctx); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	if snap.Clients, err = s.reader.ListClients(ctx); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	if snap.Onboarding, err = s.reader.ListOpenOnboardingTasks(ctx); err != nil {
		return nil, fmt.Errorf("list onboarding tasks: %w", err)
	}
	return &snap, nil
}

// enrich asks the optional LLM collaborator for a narrative. The
// deterministic summary is already final when this runs, so failures here
// only cost the narrative.
func (s *Service) enrich(ctx context.Context, summary *RunSummary, issues []Issue, opts Options) {
	if s.enricher == nil || opts.DryRun {
		return
	}

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enrichTimeout)
	defer cancel()

	narrative, err := s.enricher.Narrative(ectx, summary, issues)
	if err != nil {
		s.logger.Warn(ctx, "narrative enrichment failed", "run_id", summary.RunID, "error", err)
		return
	}
	summary.Narrative = narrative
}
