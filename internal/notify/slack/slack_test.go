package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/scan"
)

func testSummary() *scan.RunSummary {
	return &scan.RunSummary{
		RunID:       "01TESTRUN",
		StartedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		IssuesFound: 7,
		BySeverity: map[scan.Severity]int{
			scan.SeverityCritical: 5,
			scan.SeverityWarning:  2,
		},
		AlertsCreated: 3,
		TasksCreated:  5,
	}
}

func TestSendAdminNotification(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if err := n.SendAdminNotification(context.Background(), testSummary()); err != nil {
		t.Fatalf("SendAdminNotification: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(gotBody, &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := msg["blocks"]; !ok {
		t.Error("payload missing blocks")
	}
	if !strings.Contains(string(gotBody), "01TESTRUN") {
		t.Error("payload should reference the run ID")
	}
	if !strings.Contains(string(gotBody), "Compliance Scan") {
		t.Error("payload should carry the header title")
	}
}

func TestSendAdminNotification_Non2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if err := n.SendAdminNotification(context.Background(), testSummary()); err == nil {
		t.Error("expected error on non-2xx response")
	}
}

func TestSendAdminNotification_EmptyURLIsNoOp(t *testing.T) {
	t.Parallel()

	n := New("", log.Nop())
	if err := n.SendAdminNotification(context.Background(), testSummary()); err != nil {
		t.Fatalf("SendAdminNotification: %v", err)
	}
}

func TestBuildMessage_IncludesNarrativeBlockWhenPresent(t *testing.T) {
	t.Parallel()

	s := testSummary()
	without := buildMessage(s)
	s.Narrative = "Five licenses expire this month."
	with := buildMessage(s)

	blocksWithout := without["blocks"].([]map[string]any)
	blocksWith := with["blocks"].([]map[string]any)
	if len(blocksWith) <= len(blocksWithout) {
		t.Errorf("narrative should add blocks: %d vs %d", len(blocksWith), len(blocksWithout))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 4000)
	got := truncate(long, maxNarrativeLen)
	if len(got) != maxNarrativeLen {
		t.Errorf("len = %d, want %d", len(got), maxNarrativeLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated string should end with ellipsis")
	}
	if truncate("short", maxNarrativeLen) != "short" {
		t.Error("short strings must pass through unchanged")
	}
}
