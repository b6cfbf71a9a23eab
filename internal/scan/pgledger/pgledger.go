// Package pgledger provides a PostgreSQL implementation of scan.Ledger.
// Atomicity comes from the primary key on (entity_id, rule_id, bucket):
// INSERT ... ON CONFLICT DO NOTHING makes concurrent Reserves on one key
// resolve to a single winner, with the loser reading zero rows affected.
package pgledger

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/scan"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/scan/pgledger")

//go:embed schema.sql
var schema string

// Ledger persists deduplication entries in PostgreSQL.
type Ledger struct {
	pool *pgxpool.Pool
}

// New applies the ledger schema and returns a ready Ledger.
func New(ctx context.Context, pool *pgxpool.Pool) (*Ledger, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// Reserve implements scan.Ledger.
func (l *Ledger) Reserve(ctx context.Context, key scan.LedgerKey, rank int) (scan.Decision, error) {
	ctx, span := tracer.Start(ctx, "pgledger.Reserve", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	minRank, found, err := l.minRank(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if found && minRank <= rank {
		return scan.DecisionAlreadyHandled, nil
	}

	tag, err := l.pool.Exec(ctx,
		`INSERT INTO ledger_entries (entity_id, rule_id, bucket, rank)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_id, rule_id, bucket) DO NOTHING`,
		key.EntityID, key.RuleID, key.Bucket, rank,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("reserve %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to a concurrent run. Not an error.
		return scan.DecisionAlreadyHandled, nil
	}
	if found {
		return scan.DecisionEscalated, nil
	}
	return scan.DecisionNew, nil
}

// Peek implements scan.Ledger.
func (l *Ledger) Peek(ctx context.Context, key scan.LedgerKey, rank int) (scan.Decision, error) {
	ctx, span := tracer.Start(ctx, "pgledger.Peek", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM ledger_entries
		   WHERE entity_id = $1 AND rule_id = $2 AND bucket = $3
		 )`,
		key.EntityID, key.RuleID, key.Bucket,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("peek %s: %w", key, err)
	}
	if exists {
		return scan.DecisionAlreadyHandled, nil
	}

	minRank, found, err := l.minRank(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	switch {
	case found && minRank <= rank:
		return scan.DecisionAlreadyHandled, nil
	case found:
		return scan.DecisionEscalated, nil
	default:
		return scan.DecisionNew, nil
	}
}

// Attach implements scan.Ledger.
func (l *Ledger) Attach(ctx context.Context, key scan.LedgerKey, alertID string) error {
	ctx, span := tracer.Start(ctx, "pgledger.Attach", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := l.pool.Exec(ctx,
		`UPDATE ledger_entries SET alert_id = $4
		 WHERE entity_id = $1 AND rule_id = $2 AND bucket = $3`,
		key.EntityID, key.RuleID, key.Bucket, alertID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("attach %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attach: no ledger entry for %s", key)
	}
	return nil
}

// Release implements scan.Ledger.
func (l *Ledger) Release(ctx context.Context, key scan.LedgerKey) error {
	ctx, span := tracer.Start(ctx, "pgledger.Release", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	_, err := l.pool.Exec(ctx,
		`DELETE FROM ledger_entries
		 WHERE entity_id = $1 AND rule_id = $2 AND bucket = $3`,
		key.EntityID, key.RuleID, key.Bucket,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// ReleaseAlert implements scan.Ledger.
func (l *Ledger) ReleaseAlert(ctx context.Context, alertID string) error {
	ctx, span := tracer.Start(ctx, "pgledger.ReleaseAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "DELETE"),
	))
	defer span.End()

	_, err := l.pool.Exec(ctx,
		`DELETE FROM ledger_entries WHERE alert_id = $1`, alertID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("release alert %s: %w", alertID, err)
	}
	return nil
}

// minRank returns the most urgent rank recorded for (entity, rule).
func (l *Ledger) minRank(ctx context.Context, key scan.LedgerKey) (int, bool, error) {
	var min *int
	err := l.pool.QueryRow(ctx,
		`SELECT MIN(rank) FROM ledger_entries WHERE entity_id = $1 AND rule_id = $2`,
		key.EntityID, key.RuleID,
	).Scan(&min)
	if err != nil {
		return 0, false, fmt.Errorf("min rank for %s/%s: %w", key.EntityID, key.RuleID, err)
	}
	if min == nil {
		return 0, false, nil
	}
	return *min, true, nil
}
