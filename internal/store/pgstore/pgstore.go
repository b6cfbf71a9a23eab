// Package pgstore provides PostgreSQL implementations of the scan store
// interfaces (alerts, tasks, run summaries).
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/scan"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/store/pgstore")

//go:embed schema.sql
var schema string

// Store persists alerts, tasks, and run summaries in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// CreateAlert inserts a new alert row.
func (s *Store) CreateAlert(ctx context.Context, a *scan.Alert) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, entity_type, entity_id, alert_type, severity, title, message, due_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.EntityType, a.EntityID, a.AlertType, a.Severity, a.Title, a.Message, a.DueDate, a.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListOpenAlerts returns unresolved alerts, most urgent first.
func (s *Store) ListOpenAlerts(ctx context.Context) ([]scan.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListOpenAlerts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_type, entity_id, alert_type, severity, title, message, due_date, created_at, resolved_at
		 FROM alerts
		 WHERE resolved_at IS NULL
		 ORDER BY due_date, created_at`,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []scan.Alert
	for rows.Next() {
		var a scan.Alert
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.AlertType, &a.Severity,
			&a.Title, &a.Message, &a.DueDate, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// ResolveAlert marks an alert resolved. Returns false if the alert is
// missing or already resolved.
func (s *Store) ResolveAlert(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ResolveAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL`,
		id, time.Now(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, t *scan.Task) error {
	ctx, span := tracer.Start(ctx, "pgstore.CreateTask", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, title, description, priority, due_date, related_entity_id, auto_generated, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Title, t.Description, t.Priority, t.DueDate, t.RelatedEntityID, t.AutoGenerated, t.Status, t.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// PutRun inserts or updates a run summary (upsert on run ID).
func (s *Store) PutRun(ctx context.Context, r *scan.RunSummary) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutRun", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	bySeverity, err := json.Marshal(r.BySeverity)
	if err != nil {
		return fmt.Errorf("marshal by_severity: %w", err)
	}
	byRule, err := json.Marshal(r.ByRule)
	if err != nil {
		return fmt.Errorf("marshal by_rule: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scan_runs (
			id, started_at, duration_s, dry_run, partial, issues_found,
			by_severity, by_rule, alerts_created, tasks_created, escalations,
			suppressed, deferred, notification_sent, errors_count, evaluation_errors, narrative
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			duration_s        = EXCLUDED.duration_s,
			partial           = EXCLUDED.partial,
			alerts_created    = EXCLUDED.alerts_created,
			tasks_created     = EXCLUDED.tasks_created,
			escalations       = EXCLUDED.escalations,
			suppressed        = EXCLUDED.suppressed,
			deferred          = EXCLUDED.deferred,
			notification_sent = EXCLUDED.notification_sent,
			errors_count      = EXCLUDED.errors_count,
			evaluation_errors = EXCLUDED.evaluation_errors,
			narrative         = EXCLUDED.narrative`,
		r.RunID, r.StartedAt, r.Duration, r.DryRun, r.Partial, r.IssuesFound,
		bySeverity, byRule, r.AlertsCreated, r.TasksCreated, r.Escalations,
		r.Suppressed, r.Deferred, r.CriticalNotificationSent, r.ErrorsCount, r.EvaluationErrors, r.Narrative,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run summary by ID. Returns (nil, false, nil) when the
// run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*scan.RunSummary, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetRun", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var (
		r          scan.RunSummary
		bySeverity []byte
		byRule     []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, started_at, duration_s, dry_run, partial, issues_found,
			by_severity, by_rule, alerts_created, tasks_created, escalations,
			suppressed, deferred, notification_sent, errors_count, evaluation_errors, narrative
		 FROM scan_runs WHERE id = $1`, id,
	).Scan(
		&r.RunID, &r.StartedAt, &r.Duration, &r.DryRun, &r.Partial, &r.IssuesFound,
		&bySeverity, &byRule, &r.AlertsCreated, &r.TasksCreated, &r.Escalations,
		&r.Suppressed, &r.Deferred, &r.CriticalNotificationSent, &r.ErrorsCount, &r.EvaluationErrors, &r.Narrative,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("get run: %w", err)
	}

	if err := json.Unmarshal(bySeverity, &r.BySeverity); err != nil {
		return nil, false, fmt.Errorf("unmarshal by_severity: %w", err)
	}
	if err := json.Unmarshal(byRule, &r.ByRule); err != nil {
		return nil, false, fmt.Errorf("unmarshal by_rule: %w", err)
	}
	return &r, true, nil
}
