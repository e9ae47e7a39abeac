package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"SpriteForge/internal/domain"
	"SpriteForge/internal/ports"
)

const (
	runsTable     = "sprite_runs"
	attemptsTable = "sprite_attempts"
)

const schema = `
CREATE TABLE IF NOT EXISTS sprite_runs (
    id             TEXT PRIMARY KEY,
    mode           TEXT NOT NULL,
    reference_path TEXT NOT NULL,
    max_attempts   INTEGER NOT NULL,
    validated      BOOLEAN NOT NULL DEFAULT FALSE,
    attempts       INTEGER NOT NULL DEFAULT 0,
    started_at     TIMESTAMPTZ NOT NULL,
    finished_at    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS sprite_attempts (
    run_id        TEXT NOT NULL REFERENCES sprite_runs(id),
    attempt       INTEGER NOT NULL,
    stage         TEXT NOT NULL,
    outcome       TEXT NOT NULL,
    artifact_path TEXT NOT NULL DEFAULT '',
    verdict_text  TEXT NOT NULL DEFAULT '',
    recorded_at   TIMESTAMPTZ NOT NULL
);`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresLedger records runs and attempt outcomes into Postgres.
type PostgresLedger struct {
	db *sql.DB
}

var _ ports.AttemptLedger = (*PostgresLedger)(nil)

// OpenPostgres connects to dsn and makes sure the ledger tables exist.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	ledger := NewPostgresLedger(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// NewPostgresLedger wires a sql.DB implementation.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the ledger tables when missing.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// StartRun inserts the run header.
func (l *PostgresLedger) StartRun(ctx context.Context, run domain.RunRecord) error {
	query, args, err := startRunQuery(run)
	if err != nil {
		return err
	}
	return l.exec(ctx, "insert run", query, args)
}

// SaveAttempt appends one attempt outcome.
func (l *PostgresLedger) SaveAttempt(ctx context.Context, attempt domain.AttemptRecord) error {
	query, args, err := saveAttemptQuery(attempt)
	if err != nil {
		return err
	}
	return l.exec(ctx, "insert attempt", query, args)
}

// FinishRun stores the final result of a run.
func (l *PostgresLedger) FinishRun(ctx context.Context, runID string, validated bool, attempts int) error {
	query, args, err := finishRunQuery(runID, validated, attempts)
	if err != nil {
		return err
	}
	return l.exec(ctx, "finish run", query, args)
}

// Close releases the connection pool.
func (l *PostgresLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *PostgresLedger) exec(ctx context.Context, op, query string, args []interface{}) error {
	if l.db == nil {
		return nil
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func startRunQuery(run domain.RunRecord) (string, []interface{}, error) {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	query, args, err := psql.Insert(runsTable).
		Columns("id", "mode", "reference_path", "max_attempts", "started_at").
		Values(run.ID, run.Mode, run.ReferencePath, run.MaxAttempts, startedAt).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build run insert: %w", err)
	}
	return query, args, nil
}

func saveAttemptQuery(a domain.AttemptRecord) (string, []interface{}, error) {
	recordedAt := a.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	query, args, err := psql.Insert(attemptsTable).
		Columns("run_id", "attempt", "stage", "outcome", "artifact_path", "verdict_text", "recorded_at").
		Values(a.RunID, a.Attempt, a.Stage, a.Outcome, a.ArtifactPath, a.VerdictText, recordedAt).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build attempt insert: %w", err)
	}
	return query, args, nil
}

func finishRunQuery(runID string, validated bool, attempts int) (string, []interface{}, error) {
	query, args, err := psql.Update(runsTable).
		Set("validated", validated).
		Set("attempts", attempts).
		Set("finished_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build run update: %w", err)
	}
	return query, args, nil
}
