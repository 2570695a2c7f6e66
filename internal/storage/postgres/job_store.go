// Package postgres provides a Postgres-backed job store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// JobStore implements validation.JobStore on Postgres.
type JobStore struct {
	db  DB
	now func() time.Time
}

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewJobStore wraps an open pool (or a mock in tests).
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &JobStore{db: db, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

const insertJobSQL = `
INSERT INTO validation_jobs (id, kind, status, total_items, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job validation.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	status := job.Status
	if status == "" {
		status = validation.JobStatusPending
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	tag, err := s.db.Exec(ctx, insertJobSQL, job.ID, string(job.Kind), string(status), job.Total, created.UTC())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, validation.ErrJobExists)
	}
	return nil
}

const updateStatusSQL = `
UPDATE validation_jobs SET
	status = $2,
	error_text = $3,
	processed_items = $4,
	valid_items = $5,
	invalid_items = $6,
	started_at = CASE WHEN $2 = 'processing' THEN COALESCE(started_at, $7) ELSE started_at END,
	completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN $7 ELSE completed_at END
WHERE id = $1`

// UpdateJobStatus records a status transition and the latest counters.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status validation.JobStatus,
	errText string,
	counters validation.JobCounters,
) error {
	tag, err := s.db.Exec(ctx, updateStatusSQL,
		jobID,
		string(status),
		errText,
		counters.Processed,
		counters.Valid,
		counters.Invalid,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	return nil
}

const deleteBatchSQL = `DELETE FROM validation_results WHERE job_id = $1 AND batch_seq = $2`

const insertVerdictSQL = `
INSERT INTO validation_results (job_id, batch_seq, position, item, is_valid, error_reason, verdict)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const recountSQL = `
UPDATE validation_jobs j SET
	processed_items = r.total,
	valid_items = r.valid,
	invalid_items = r.total - r.valid
FROM (
	SELECT count(*) AS total, count(*) FILTER (WHERE is_valid) AS valid
	FROM validation_results WHERE job_id = $1
) r
WHERE j.id = $1`

// PersistBatch replaces one batch of verdicts and recomputes the job
// counters inside a single transaction.
func (s *JobStore) PersistBatch(ctx context.Context, jobID string, seq int, verdicts []validation.Verdict) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	if err := persistBatchTx(ctx, tx, jobID, seq, verdicts); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %d: %w", seq, err)
	}
	return nil
}

func persistBatchTx(ctx context.Context, tx pgx.Tx, jobID string, seq int, verdicts []validation.Verdict) error {
	if _, err := tx.Exec(ctx, deleteBatchSQL, jobID, seq); err != nil {
		return fmt.Errorf("clear batch %d: %w", seq, err)
	}
	for i, v := range verdicts {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal verdict %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx, insertVerdictSQL, jobID, seq, i, v.Item, v.Valid, string(v.Reason), payload); err != nil {
			return fmt.Errorf("insert verdict %d of batch %d: %w", i, seq, err)
		}
	}
	tag, err := tx.Exec(ctx, recountSQL, jobID)
	if err != nil {
		return fmt.Errorf("recount job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	return nil
}

const selectJobSQL = `
SELECT id, kind, status, total_items, processed_items, valid_items, invalid_items,
	error_text, created_at, started_at, completed_at
FROM validation_jobs
WHERE id = $1`

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (validation.Job, error) {
	var (
		job    validation.Job
		kind   string
		status string
	)
	err := s.db.QueryRow(ctx, selectJobSQL, jobID).Scan(
		&job.ID,
		&kind,
		&status,
		&job.Total,
		&job.Counters.Processed,
		&job.Counters.Valid,
		&job.Counters.Invalid,
		&job.ErrorText,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return validation.Job{}, fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
		}
		return validation.Job{}, fmt.Errorf("get job: %w", err)
	}
	job.Kind = validation.Kind(kind)
	job.Status = validation.JobStatus(status)
	return job, nil
}

const jobExistsSQL = `SELECT EXISTS (SELECT 1 FROM validation_jobs WHERE id = $1)`

const selectVerdictsSQL = `
SELECT verdict FROM validation_results
WHERE job_id = $1
ORDER BY batch_seq, position`

// ListVerdicts returns every verdict for a job in batch order.
func (s *JobStore) ListVerdicts(ctx context.Context, jobID string) ([]validation.Verdict, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, jobExistsSQL, jobID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	rows, err := s.db.Query(ctx, selectVerdictsSQL, jobID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var out []validation.Verdict
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan verdict row: %w", err)
		}
		var v validation.Verdict
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode verdict: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return out, nil
}
