package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
	id           TEXT PRIMARY KEY,
	prompt       TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	auth_mode    TEXT NOT NULL,
	exit_code    INTEGER NOT NULL DEFAULT 0,
	elapsed_ms   BIGINT NOT NULL DEFAULT 0,
	response     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_completed_at ON executions (completed_at DESC);
`

// PostgresRepository persists execution records in PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresRepository connects to the configured database and ensures the
// executions table exists.
func NewPostgresRepository(ctx context.Context, cfg config.HistoryConfig, log *logger.Logger) (*PostgresRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create database pool")
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: log.WithFields(zap.String("component", "history-postgres")),
	}

	if _, err := pool.Exec(connectCtx, createExecutionsTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ensure executions table")
	}

	repo.logger.Info("connected to execution history database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))
	return repo, nil
}

// Save upserts a record keyed by execution id.
func (r *PostgresRepository) Save(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return errors.BadRequest("history record requires an id")
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO executions
			(id, prompt, outcome, auth_mode, exit_code, elapsed_ms, response, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			exit_code = EXCLUDED.exit_code,
			elapsed_ms = EXCLUDED.elapsed_ms,
			response = EXCLUDED.response,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`,
		record.ID, record.Prompt, record.Outcome, record.AuthMode,
		record.ExitCode, record.ElapsedMs, record.Response, record.Error,
		record.StartedAt, record.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save execution record")
	}
	return nil
}

// Get returns the record with the given execution id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, prompt, outcome, auth_mode, exit_code, elapsed_ms, response, error, started_at, completed_at
		FROM executions WHERE id = $1`, id)

	var record Record
	err := row.Scan(&record.ID, &record.Prompt, &record.Outcome, &record.AuthMode,
		&record.ExitCode, &record.ElapsedMs, &record.Response, &record.Error,
		&record.StartedAt, &record.CompletedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("execution", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load execution record")
	}
	return &record, nil
}

// List returns up to limit records, most recent first.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, prompt, outcome, auth_mode, exit_code, elapsed_ms, response, error, started_at, completed_at
		FROM executions ORDER BY completed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list execution records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Prompt, &record.Outcome, &record.AuthMode,
			&record.ExitCode, &record.ElapsedMs, &record.Response, &record.Error,
			&record.StartedAt, &record.CompletedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution record")
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate execution records")
	}
	return records, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
