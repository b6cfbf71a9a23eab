package scan

import (
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/warden/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func licenseRule(t *testing.T) Rule {
	t.Helper()
	for _, r := range DefaultCatalog() {
		if r.ID == "license_expiry" {
			return r
		}
	}
	t.Fatal("license_expiry rule missing from default catalog")
	return Rule{}
}

func dormancyRule(t *testing.T) Rule {
	t.Helper()
	for _, r := range DefaultCatalog() {
		if r.ID == "client_dormancy" {
			return r
		}
	}
	t.Fatal("client_dormancy rule missing from default catalog")
	return Rule{}
}

func TestEvaluate_BucketBoundaryInclusiveOnTighterSide(t *testing.T) {
	t.Parallel()

	r := licenseRule(t)

	tests := []struct {
		name       string
		date       string
		wantBucket string
		wantSev    Severity
		wantRank   int
	}{
		{"exactly on boundary", "2026-03-31", "30", SeverityWarning, 2}, // delta 30
		{"one past boundary", "2026-04-01", "60", SeverityWarning, 3},   // delta 31
		{"inside critical window", "2026-03-11", "14", SeverityCritical, 1},
		{"expires today", "2026-03-01", "0", SeverityCritical, 0},
		{"already expired", "2026-02-27", "0", SeverityCritical, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := Record{Type: domain.EntityLicense, ID: "lic-1", Label: "CA P&C license lic-1", Date: tt.date}
			issue, ok, err := Evaluate(rec, r, testNow)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if !ok {
				t.Fatal("expected a match")
			}
			if issue.Bucket != tt.wantBucket {
				t.Errorf("bucket = %q, want %q", issue.Bucket, tt.wantBucket)
			}
			if issue.Severity != tt.wantSev {
				t.Errorf("severity = %q, want %q", issue.Severity, tt.wantSev)
			}
			if issue.Rank != tt.wantRank {
				t.Errorf("rank = %d, want %d", issue.Rank, tt.wantRank)
			}
		})
	}
}

func TestEvaluate_MissingDateIsNotACondition(t *testing.T) {
	t.Parallel()

	rec := Record{Type: domain.EntityLicense, ID: "lic-1", Label: "lic", Date: ""}
	_, ok, err := Evaluate(rec, licenseRule(t), testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Error("missing date must not produce an issue")
	}
}

func TestEvaluate_MalformedDate(t *testing.T) {
	t.Parallel()

	rec := Record{Type: domain.EntityLicense, ID: "lic-1", Label: "lic", Date: "03/15/2026"}
	_, ok, err := Evaluate(rec, licenseRule(t), testNow)
	if !errors.Is(err, ErrBadDate) {
		t.Fatalf("err = %v, want ErrBadDate", err)
	}
	if ok {
		t.Error("malformed date must not produce an issue")
	}
}

func TestEvaluate_RFC3339Date(t *testing.T) {
	t.Parallel()

	rec := Record{Type: domain.EntityLicense, ID: "lic-1", Label: "lic", Date: "2026-03-11T09:30:00Z"}
	issue, ok, err := Evaluate(rec, licenseRule(t), testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected a match")
	}
	if issue.DaysDelta != 10 {
		t.Errorf("daysDelta = %d, want 10", issue.DaysDelta)
	}
}

func TestEvaluate_TooFarAwayDoesNotMatch(t *testing.T) {
	t.Parallel()

	rec := Record{Type: domain.EntityLicense, ID: "lic-1", Label: "lic", Date: "2026-09-01"}
	_, ok, err := Evaluate(rec, licenseRule(t), testNow)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Error("a date beyond every threshold must not match")
	}
}

func TestEvaluate_AfterDirection(t *testing.T) {
	t.Parallel()

	r := dormancyRule(t)

	tests := []struct {
		name       string
		date       string
		wantMatch  bool
		wantBucket string
		wantSev    Severity
	}{
		{"long dormant", "2025-11-01", true, "90", SeverityCritical}, // 120 days ago
		{"moderately dormant", "2025-12-21", true, "60", SeverityWarning},
		{"recently contacted", "2026-02-15", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := Record{Type: domain.EntityClient, ID: "cl-1", Label: "Acme Co", Date: tt.date}
			issue, ok, err := Evaluate(rec, r, testNow)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ok != tt.wantMatch {
				t.Fatalf("match = %v, want %v", ok, tt.wantMatch)
			}
			if !ok {
				return
			}
			if issue.Bucket != tt.wantBucket {
				t.Errorf("bucket = %q, want %q", issue.Bucket, tt.wantBucket)
			}
			if issue.Severity != tt.wantSev {
				t.Errorf("severity = %q, want %q", issue.Severity, tt.wantSev)
			}
			if issue.DaysDelta >= 0 {
				t.Errorf("daysDelta = %d, want negative for a past date", issue.DaysDelta)
			}
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	t.Parallel()

	rec := Record{Type: domain.EntityLicense, ID: "lic-1", Label: "CA P&C license lic-1", Date: "2026-03-11"}
	r := licenseRule(t)

	first, ok1, err1 := Evaluate(rec, r, testNow)
	second, ok2, err2 := Evaluate(rec, r, testNow)
	if err1 != nil || err2 != nil {
		t.Fatalf("Evaluate: %v / %v", err1, err2)
	}
	if !ok1 || !ok2 {
		t.Fatal("expected both evaluations to match")
	}
	if first != second {
		t.Errorf("identical inputs diverged: %+v vs %+v", first, second)
	}
}

func TestHumanDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		dir   Direction
		want  string
	}{
		{0, DirectionBefore, "today"},
		{10, DirectionBefore, "in 10 days"},
		{-5, DirectionBefore, "5 days overdue"},
		{-63, DirectionAfter, "63 days ago"},
	}
	for _, tt := range tests {
		if got := humanDays(tt.delta, tt.dir); got != tt.want {
			t.Errorf("humanDays(%d, %s) = %q, want %q", tt.delta, tt.dir, got, tt.want)
		}
	}
}
