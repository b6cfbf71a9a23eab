// Package pgsource implements domain.Reader against the upstream agency
// database. The tables belong to the dashboard's CRUD layer; this package
// only reads them, so no schema is applied here.
package pgsource

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/domain"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/source/pgsource")

// Reader bulk-lists entity collections from PostgreSQL.
type Reader struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// Date columns are read as text: the scan engine owns parsing so malformed
// upstream values degrade per-record.

// ListAgents implements domain.Reader.
func (r *Reader) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return listInto(ctx, r.pool, "agents",
		`SELECT id, name, email, COALESCE(eo_coverage_expiry::text, '') FROM agents`,
		func(rows pgx.Rows) (domain.Agent, error) {
			var a domain.Agent
			err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.EOCoverageExpiry)
			return a, err
		})
}

// ListLicenses implements domain.Reader.
func (r *Reader) ListLicenses(ctx context.Context) ([]domain.License, error) {
	return listInto(ctx, r.pool, "licenses",
		`SELECT id, agent_id, state, line_of_business, COALESCE(expiration_date::text, '') FROM licenses`,
		func(rows pgx.Rows) (domain.License, error) {
			var l domain.License
			err := rows.Scan(&l.ID, &l.AgentID, &l.State, &l.LineOfBusiness, &l.ExpirationDate)
			return l, err
		})
}

// ListContracts implements domain.Reader.
func (r *Reader) ListContracts(ctx context.Context) ([]domain.CarrierContract, error) {
	return listInto(ctx, r.pool, "carrier_contracts",
		`SELECT id, agent_id, carrier_name, COALESCE(renewal_date::text, '') FROM carrier_contracts`,
		func(rows pgx.Rows) (domain.CarrierContract, error) {
			var c domain.CarrierContract
			err := rows.Scan(&c.ID, &c.AgentID, &c.CarrierName, &c.RenewalDate)
			return c, err
		})
}

// ListClients implements domain.Reader.
func (r *Reader) ListClients(ctx context.Context) ([]domain.Client, error) {
	return listInto(ctx, r.pool, "clients",
		`SELECT id, agent_id, name, COALESCE(last_contacted_at::text, '') FROM clients`,
		func(rows pgx.Rows) (domain.Client, error) {
			var c domain.Client
			err := rows.Scan(&c.ID, &c.AgentID, &c.Name, &c.LastContactedAt)
			return c, err
		})
}

// ListOpenOnboardingTasks implements domain.Reader.
func (r *Reader) ListOpenOnboardingTasks(ctx context.Context) ([]domain.OnboardingTask, error) {
	return listInto(ctx, r.pool, "onboarding_tasks",
		`SELECT id, client_id, title, COALESCE(due_date::text, '')
		 FROM onboarding_tasks WHERE completed_at IS NULL`,
		func(rows pgx.Rows) (domain.OnboardingTask, error) {
			var o domain.OnboardingTask
			err := rows.Scan(&o.ID, &o.ClientID, &o.Title, &o.DueDate)
			return o, err
		})
}

func listInto[T any](ctx context.Context, pool *pgxpool.Pool, table, query string, scanRow func(pgx.Rows) (T, error)) ([]T, error) {
	ctx, span := tracer.Start(ctx, "pgsource.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.String("db.collection.name", table),
	))
	defer span.End()

	rows, err := pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}
