package scan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/domain"
	"github.com/linnemanlabs/warden/internal/scan"
	"github.com/linnemanlabs/warden/internal/scan/memledger"
	"github.com/linnemanlabs/warden/internal/source/memsource"
	"github.com/linnemanlabs/warden/internal/store/memstore"
)

func dateIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func newTestService(snap domain.Snapshot) (*scan.Service, *memsource.Reader, *memstore.Store) {
	src := memsource.New(snap)
	st := memstore.New()
	svc := scan.NewService(scan.Deps{
		Reader:  src,
		Catalog: scan.DefaultCatalog(),
		Ledger:  memledger.New(),
		Alerts:  st,
		Tasks:   st,
		Runs:    st,
		Logger:  log.Nop(),
	}, scan.Config{Dispatch: scan.DefaultDispatchConfig()})
	return svc, src, st
}

func TestRun_LicenseExpiryEndToEnd(t *testing.T) {
	t.Parallel()

	svc, _, st := newTestService(domain.Snapshot{
		Licenses: []domain.License{
			{ID: "lic-1", AgentID: "ag-1", State: "CA", LineOfBusiness: "P&C", ExpirationDate: dateIn(10)},
		},
	})

	summary, issues, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.IssuesFound != 1 {
		t.Fatalf("issues found = %d, want 1", summary.IssuesFound)
	}
	if issues[0].Severity != scan.SeverityCritical {
		t.Errorf("severity = %q, want critical", issues[0].Severity)
	}
	if issues[0].Bucket != "14" {
		t.Errorf("bucket = %q, want 14", issues[0].Bucket)
	}
	if summary.AlertsCreated != 1 || summary.TasksCreated != 1 {
		t.Errorf("alerts=%d tasks=%d, want 1/1", summary.AlertsCreated, summary.TasksCreated)
	}

	alerts, err := st.ListOpenAlerts(context.Background())
	if err != nil {
		t.Fatalf("ListOpenAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("open alerts = %d, want 1", len(alerts))
	}
	if alerts[0].AlertType != "license_expiry" {
		t.Errorf("alert type = %q, want license_expiry", alerts[0].AlertType)
	}
	if !strings.Contains(alerts[0].Title, "CA") {
		t.Errorf("title %q should name the license state", alerts[0].Title)
	}
}

func TestRun_SecondRunSuppresses(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(domain.Snapshot{
		Licenses: []domain.License{
			{ID: "lic-1", State: "CA", LineOfBusiness: "P&C", ExpirationDate: dateIn(10)},
		},
	})

	first, _, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.AlertsCreated != 1 {
		t.Fatalf("first run alerts = %d, want 1", first.AlertsCreated)
	}

	second, _, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.AlertsCreated != 0 {
		t.Errorf("second run alerts = %d, want 0", second.AlertsCreated)
	}
	if second.Suppressed != 1 {
		t.Errorf("second run suppressed = %d, want 1", second.Suppressed)
	}
}

func TestRun_EscalationCreatesFreshAlert(t *testing.T) {
	t.Parallel()

	svc, src, st := newTestService(domain.Snapshot{
		Licenses: []domain.License{
			{ID: "lic-1", State: "CA", LineOfBusiness: "P&C", ExpirationDate: dateIn(40)},
		},
	})

	first, issues, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.AlertsCreated != 1 {
		t.Fatalf("first run alerts = %d, want 1", first.AlertsCreated)
	}
	if issues[0].Severity != scan.SeverityWarning {
		t.Fatalf("severity = %q, want warning at 40 days out", issues[0].Severity)
	}

	// Time passes: the same license is now inside the critical window.
	src.Replace(domain.Snapshot{
		Licenses: []domain.License{
			{ID: "lic-1", State: "CA", LineOfBusiness: "P&C", ExpirationDate: dateIn(10)},
		},
	})

	second, _, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Escalations != 1 {
		t.Errorf("escalations = %d, want 1", second.Escalations)
	}
	if second.AlertsCreated != 1 {
		t.Errorf("second run alerts = %d, want 1 (escalation)", second.AlertsCreated)
	}

	alerts, _ := st.ListOpenAlerts(context.Background())
	if len(alerts) != 2 {
		t.Errorf("open alerts = %d, want 2 (warning + critical)", len(alerts))
	}
}

func TestRun_ResolveReleasesAndReRaises(t *testing.T) {
	t.Parallel()

	svc, _, st := newTestService(domain.Snapshot{
		Licenses: []domain.License{
			{ID: "lic-1", State: "CA", LineOfBusiness: "P&C", ExpirationDate: dateIn(10)},
		},
	})

	if _, _, err := svc.Run(context.Background(), scan.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	alerts, _ := st.ListOpenAlerts(context.Background())
	if len(alerts) != 1 {
		t.Fatalf("open alerts = %d, want 1", len(alerts))
	}

	ok, err := svc.ResolveAlert(context.Background(), alerts[0].ID)
	if err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if !ok {
		t.Fatal("expected alert to resolve")
	}

	// The condition is still active, so the next run re-raises it.
	summary, _, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("Run after resolve: %v", err)
	}
	if summary.AlertsCreated != 1 {
		t.Errorf("alerts after resolve = %d, want 1", summary.AlertsCreated)
	}
}

func TestRun_DryRunIsSideEffectFree(t *testing.T) {
	t.Parallel()

	svc, _, st := newTestService(domain.Snapshot{
		Licenses: []domain.License{
			{ID: "lic-1", State: "CA", LineOfBusiness: "P&C", ExpirationDate: dateIn(10)},
		},
	})

	dry, issues, err := svc.Run(context.Background(), scan.Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry Run: %v", err)
	}
	if !dry.DryRun {
		t.Error("summary should be marked dry_run")
	}
	if dry.IssuesFound != 1 || len(issues) != 1 {
		t.Fatalf("dry run should still report issues, got %d", dry.IssuesFound)
	}
	if dry.AlertsCreated != 0 || dry.TasksCreated != 0 {
		t.Errorf("dry run created alerts=%d tasks=%d", dry.AlertsCreated, dry.TasksCreated)
	}

	alerts, _ := st.ListOpenAlerts(context.Background())
	if len(alerts) != 0 {
		t.Fatalf("open alerts after dry run = %d, want 0", len(alerts))
	}

	// Dry run must not consume the dedup keys.
	real, _, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("real Run: %v", err)
	}
	if real.AlertsCreated != 1 {
		t.Errorf("real run after dry run alerts = %d, want 1", real.AlertsCreated)
	}
}

func TestRun_GetRunRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(domain.Snapshot{})

	summary, _, err := svc.Run(context.Background(), scan.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok, err := svc.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !ok {
		t.Fatal("expected stored run summary")
	}
	if got.RunID != summary.RunID {
		t.Errorf("run_id = %q, want %q", got.RunID, summary.RunID)
	}

	_, ok, err = svc.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRun(missing): %v", err)
	}
	if ok {
		t.Error("expected missing run to report not found")
	}
}

// failingReader fails one collection to prove a read failure aborts the run.
type failingReader struct {
	domain.Reader
}

func (f *failingReader) ListLicenses(_ context.Context) ([]domain.License, error) {
	return nil, errors.New("connection refused")
}

func TestRun_ReadFailureAbortsRun(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	svc := scan.NewService(scan.Deps{
		Reader:  &failingReader{Reader: memsource.New(domain.Snapshot{})},
		Catalog: scan.DefaultCatalog(),
		Ledger:  memledger.New(),
		Alerts:  st,
		Tasks:   st,
		Runs:    st,
		Logger:  log.Nop(),
	}, scan.Config{Dispatch: scan.DefaultDispatchConfig()})

	summary, _, err := svc.Run(context.Background(), scan.Options{})
	if err == nil {
		t.Fatal("expected run to abort on collection read failure")
	}
	if summary != nil {
		t.Error("aborted run must not return a summary")
	}

	alerts, _ := st.ListOpenAlerts(context.Background())
	if len(alerts) != 0 {
		t.Errorf("aborted run created %d alerts, want 0", len(alerts))
	}
}
