// Package scanapi exposes the scan engine over HTTP: trigger a run, fetch a
// stored run summary, list open alerts, resolve an alert.
package scanapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/warden/internal/scan"
)

// ScanService defines the business operations scanapi needs.
type ScanService interface {
	Run(ctx context.Context, opts scan.Options) (*scan.RunSummary, []scan.Issue, error)
	GetRun(ctx context.Context, id string) (*scan.RunSummary, bool, error)
	ListOpenAlerts(ctx context.Context) ([]scan.Alert, error)
	ResolveAlert(ctx context.Context, id string) (bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    ScanService
}

// New creates a new API handler.
func New(logger log.Logger, svc ScanService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("scan service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scans", a.handleRunScan)
		r.Get("/scans/{id}", a.handleGetRun)
		r.Get("/alerts", a.handleListAlerts)
		r.Post("/alerts/{id}/resolve", a.handleResolveAlert)
	})
}

type runRequest struct {
	DryRun        bool `json:"dry_run"`
	IncludeIssues bool `json:"include_issues"`
}

type runResponse struct {
	Summary *scan.RunSummary `json:"summary"`
	Issues  []scan.Issue     `json:"issues,omitempty"`
}

func (a *API) handleRunScan(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	// An empty body means a default run.
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
			return
		}
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Bool("warden.scan.dry_run", req.DryRun))

	summary, issues, err := a.svc.Run(r.Context(), scan.Options{DryRun: req.DryRun})
	if err != nil {
		a.logger.Error(r.Context(), err, "scan run failed")
		http.Error(w, `{"error":"scan failed"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("warden.scan.run_id", summary.RunID))

	resp := runResponse{Summary: summary}
	if req.IncludeIssues {
		resp.Issues = issues
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("warden.scan.run_id", id))

	summary, ok, err := a.svc.GetRun(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run summary", "run_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.svc.ListOpenAlerts(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list alerts")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []scan.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"alerts": alerts})
}

func (a *API) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("warden.alert.id", id))

	ok, err := a.svc.ResolveAlert(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to resolve alert", "alert_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"resolved": id})
}
