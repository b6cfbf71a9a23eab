package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/warden/internal/scan"
)

func TestAlerts_CreateListResolve(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	a := &scan.Alert{ID: "al-1", EntityID: "lic-1", AlertType: "license_expiry", Severity: "critical", CreatedAt: time.Now()}
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	open, err := s.ListOpenAlerts(ctx)
	if err != nil {
		t.Fatalf("ListOpenAlerts: %v", err)
	}
	if len(open) != 1 || open[0].ID != "al-1" {
		t.Fatalf("open = %v, want [al-1]", open)
	}

	ok, err := s.ResolveAlert(ctx, "al-1")
	if err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if !ok {
		t.Fatal("expected resolve to succeed")
	}

	open, _ = s.ListOpenAlerts(ctx)
	if len(open) != 0 {
		t.Errorf("open after resolve = %d, want 0", len(open))
	}
}

func TestResolveAlert_MissingOrAlreadyResolved(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	ok, err := s.ResolveAlert(ctx, "missing")
	if err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if ok {
		t.Error("resolving a missing alert should return false")
	}

	_ = s.CreateAlert(ctx, &scan.Alert{ID: "al-1"})
	if ok, _ := s.ResolveAlert(ctx, "al-1"); !ok {
		t.Fatal("first resolve should succeed")
	}
	if ok, _ := s.ResolveAlert(ctx, "al-1"); ok {
		t.Error("second resolve should return false")
	}
}

func TestCreateAlert_StoresCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	a := &scan.Alert{ID: "al-1", Title: "original"}
	_ = s.CreateAlert(ctx, a)
	a.Title = "mutated"

	open, _ := s.ListOpenAlerts(ctx)
	if open[0].Title != "original" {
		t.Errorf("title = %q, caller mutation leaked into store", open[0].Title)
	}
}

func TestRuns_PutGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	r := &scan.RunSummary{RunID: "run-1", IssuesFound: 3}
	if err := s.PutRun(ctx, r); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	got, ok, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !ok {
		t.Fatal("expected run to exist")
	}
	if got.IssuesFound != 3 {
		t.Errorf("issues_found = %d, want 3", got.IssuesFound)
	}

	_, ok, err = s.GetRun(ctx, "missing")
	if err != nil {
		t.Fatalf("GetRun(missing): %v", err)
	}
	if ok {
		t.Error("missing run should report not found")
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.CreateTask(context.Background(), &scan.Task{ID: "t-1", Status: scan.TaskStatusOpen}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
}
