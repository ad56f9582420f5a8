package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be tested against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

var pgJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// PostgresStore persists runs into a single coact_runs table, with the full
// record as a jsonb payload next to the queryable columns.
type PostgresStore struct {
	pool   DBPool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection before returning the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger.Named("store")}, nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS coact_runs (
		run_id       TEXT PRIMARY KEY,
		task_id      INTEGER NOT NULL,
		intent       TEXT NOT NULL,
		verdict      TEXT NOT NULL,
		answer       TEXT NOT NULL DEFAULT '',
		reason       TEXT NOT NULL DEFAULT '',
		replan_count INTEGER NOT NULL,
		step_count   INTEGER NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		payload      JSONB NOT NULL
	);`

// EnsureSchema creates the runs table if it does not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure runs schema: %w", err)
	}
	return nil
}

const insertRunSQL = `
	INSERT INTO coact_runs
		(run_id, task_id, intent, verdict, answer, reason, replan_count, step_count, started_at, finished_at, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (run_id) DO UPDATE SET
		verdict = EXCLUDED.verdict,
		answer = EXCLUDED.answer,
		reason = EXCLUDED.reason,
		replan_count = EXCLUDED.replan_count,
		step_count = EXCLUDED.step_count,
		finished_at = EXCLUDED.finished_at,
		payload = EXCLUDED.payload;`

// SaveRun upserts the run record keyed by run id.
func (p *PostgresStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	payload, err := pgJSON.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run payload: %w", err)
	}

	_, err = p.pool.Exec(ctx, insertRunSQL,
		rec.RunID, rec.TaskID, rec.Intent,
		string(rec.Verdict.Kind), rec.Verdict.Answer, rec.Verdict.Reason,
		rec.ReplanCount, rec.StepCount,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}
	p.logger.Info("Run result persisted",
		zap.String("run_id", rec.RunID),
		zap.Int("task_id", rec.TaskID),
		zap.String("verdict", string(rec.Verdict.Kind)))
	return nil
}
