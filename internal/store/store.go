// Package store encapsulates every SQL statement the coordination engine
// issues and the schema of the Job/Unit/Artifact tables. All mutations
// that participate in the claim/retry/completion protocol are guarded,
// conditional updates: a zero-row result is a normal signal (stolen,
// expired, or already-finalized work), never an error.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"batchexport/internal/models"
)

// Sentinel errors surfaced by Store operations.
var (
	ErrJobKeyConflict = errors.New("store: job_key already exists")
	ErrTooManyUnits   = errors.New("store: unit count exceeds configured cap")
	ErrJobNotFound    = errors.New("store: job not found")
	ErrUnitNotDLQ     = errors.New("store: unit is not in DLQ")
)

const pgUniqueViolation = "23505"

// Store wraps a pgxpool.Pool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an already-constructed pool, for tests.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool for callers that issue raw export
// queries outside Store's own statements (e.g. exportproc.PostgresSource).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// CreateJob inserts one Job row and all Unit rows (PENDING, attempt 0) in a
// single transaction. Fails with ErrJobKeyConflict if job_key exists, or
// ErrTooManyUnits if len(units) exceeds maxUnitsPerJob.
func (s *Store) CreateJob(ctx context.Context, job models.Job, units []models.Unit, maxUnitsPerJob int) error {
	if maxUnitsPerJob > 0 && len(units) > maxUnitsPerJob {
		return ErrTooManyUnits
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (job_id, job_key, status, total_inputs, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.JobID, job.JobKey, models.JobSubmitted, len(units), job.RequestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrJobKeyConflict
		}
		return fmt.Errorf("insert job: %w", err)
	}

	batch := &pgx.Batch{}
	for _, u := range units {
		batch.Queue(`
			INSERT INTO units (input_id, job_id, index_key, effective_date, asof_indicator, status, attempt_count, is_reused)
			VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE)
		`, u.InputID, job.JobID, u.IndexKey, u.EffectiveDate, u.AsofIndicator, models.UnitPending)
	}
	br := tx.SendBatch(ctx, batch)
	for range units {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert unit: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SelectEligible returns up to limit unit ids eligible for claim: the
// parent job is non-terminal and the unit is PENDING, RETRY_WAIT past due,
// or RUNNING with an expired lease. Ordered oldest job first, then by
// input_id, for fair FIFO across jobs.
func (s *Store) SelectEligible(ctx context.Context, limit int, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.input_id
		FROM units u
		JOIN jobs j ON j.job_id = u.job_id
		WHERE j.status NOT IN ($1, $2, $3)
		  AND (
		        u.status = $4
		     OR (u.status = $5 AND u.next_retry_at <= $6)
		     OR (u.status = $7 AND u.lease_until <= $6)
		      )
		ORDER BY j.requested_at ASC, u.input_id ASC
		LIMIT $8
	`, models.JobCompleted, models.JobFailed, models.JobCancelled,
		models.UnitPending, models.UnitRetryWait, now, models.UnitRunning, limit)
	if err != nil {
		return nil, fmt.Errorf("select eligible: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan eligible: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim atomically transitions a unit to RUNNING under workerId, bumping
// attempt_count, and (first claim only) flips the parent job from
// SUBMITTED to RUNNING with started_at set. Returns true iff the claim
// guard matched exactly one unit row.
func (s *Store) Claim(ctx context.Context, inputID, workerID string, leaseSeconds int, now time.Time) (bool, error) {
	leaseUntil := now.Add(time.Duration(leaseSeconds) * time.Second)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE units u
		SET status = $1, lease_owner = $2, lease_until = $3, attempt_count = attempt_count + 1,
		    next_retry_at = NULL
		FROM jobs j
		WHERE u.job_id = j.job_id
		  AND u.input_id = $4
		  AND j.status NOT IN ($5, $6, $7)
		  AND (
		        u.status = $8
		     OR (u.status = $9 AND u.next_retry_at <= $10)
		     OR (u.status = $1 AND u.lease_until <= $10)
		      )
	`, models.UnitRunning, workerID, leaseUntil, inputID,
		models.JobCompleted, models.JobFailed, models.JobCancelled,
		models.UnitPending, models.UnitRetryWait, now)
	if err != nil {
		return false, fmt.Errorf("claim unit: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $1, started_at = COALESCE(started_at, $2)
		WHERE job_id = (SELECT job_id FROM units WHERE input_id = $3)
		  AND status = $4
	`, models.JobRunning, now, inputID, models.JobSubmitted); err != nil {
		return false, fmt.Errorf("mark job running: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit claim: %w", err)
	}
	return true, nil
}

// Renew extends lease_until only while lease_owner = workerId.
func (s *Store) Renew(ctx context.Context, inputID, workerID string, leaseSeconds int, now time.Time) (bool, error) {
	leaseUntil := now.Add(time.Duration(leaseSeconds) * time.Second)
	tag, err := s.pool.Exec(ctx, `
		UPDATE units
		SET lease_until = $1
		WHERE input_id = $2 AND lease_owner = $3 AND status = $4
	`, leaseUntil, inputID, workerID, models.UnitRunning)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSucceededReused records a reuse terminal transition; no DB procedure
// call or upload preceded it.
func (s *Store) MarkSucceededReused(ctx context.Context, inputID, workerID, s3Path string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE units
		SET status = $1, s3_path = $2, is_reused = TRUE, lease_owner = NULL, lease_until = NULL, error_message = NULL
		WHERE input_id = $3 AND lease_owner = $4
	`, models.UnitSucceeded, s3Path, inputID, workerID)
	if err != nil {
		return false, fmt.Errorf("mark succeeded reused: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSucceededGenerated records a generate terminal transition after a
// successful upload and artifact upsert.
func (s *Store) MarkSucceededGenerated(ctx context.Context, inputID, workerID, s3Path string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE units
		SET status = $1, s3_path = $2, is_reused = FALSE, lease_owner = NULL, lease_until = NULL, error_message = NULL
		WHERE input_id = $3 AND lease_owner = $4
	`, models.UnitSucceeded, s3Path, inputID, workerID)
	if err != nil {
		return false, fmt.Errorf("mark succeeded generated: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ScheduleRetry transitions RUNNING->RETRY_WAIT and clears the lease.
// attempt_count was already incremented on claim; it is not touched here.
func (s *Store) ScheduleRetry(ctx context.Context, inputID, workerID string, nextRetryAt time.Time, errorMessage string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE units
		SET status = $1, next_retry_at = $2, lease_owner = NULL, lease_until = NULL, error_message = $3
		WHERE input_id = $4 AND lease_owner = $5
	`, models.UnitRetryWait, nextRetryAt, errorMessage, inputID, workerID)
	if err != nil {
		return false, fmt.Errorf("schedule retry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MoveToDLQ transitions RUNNING->DLQ and clears the lease. The caller is
// responsible for the consequent FailJob fail-fast call.
func (s *Store) MoveToDLQ(ctx context.Context, inputID, workerID, errorMessage string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE units
		SET status = $1, lease_owner = NULL, lease_until = NULL, error_message = $2
		WHERE input_id = $3 AND lease_owner = $4
	`, models.UnitDLQ, errorMessage, inputID, workerID)
	if err != nil {
		return false, fmt.Errorf("move to dlq: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LookupArtifact returns the artifact for the natural key, if any.
func (s *Store) LookupArtifact(ctx context.Context, key string, date int, asof string) (*models.Artifact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT index_key, effective_date, asof_indicator, s3_path, source_job_id, generated_at
		FROM artifacts WHERE index_key = $1 AND effective_date = $2 AND asof_indicator = $3
	`, key, date, asof)
	var a models.Artifact
	if err := row.Scan(&a.IndexKey, &a.EffectiveDate, &a.AsofIndicator, &a.S3Path, &a.SourceJobID, &a.GeneratedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup artifact: %w", err)
	}
	return &a, nil
}

// UpsertArtifact inserts or updates the reuse registry row for the
// natural key, idempotent under identical inputs.
func (s *Store) UpsertArtifact(ctx context.Context, a models.Artifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (index_key, effective_date, asof_indicator, s3_path, source_job_id, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (index_key, effective_date, asof_indicator)
		DO UPDATE SET s3_path = EXCLUDED.s3_path, source_job_id = EXCLUDED.source_job_id, generated_at = EXCLUDED.generated_at
	`, a.IndexKey, a.EffectiveDate, a.AsofIndicator, a.S3Path, a.SourceJobID, a.GeneratedAt)
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

// FailJob marks a job FAILED with the given message. Idempotent: a no-op
// if the job is already in a terminal state (COMPLETED/FAILED/CANCELLED
// are all absorbing per the job invariants).
func (s *Store) FailJob(ctx context.Context, jobID, errorMessage string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = COALESCE(completed_at, $2), error_message = $3
		WHERE job_id = $4 AND status NOT IN ($5, $6, $7)
	`, models.JobFailed, now, errorMessage, jobID, models.JobCompleted, models.JobFailed, models.JobCancelled)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// CancelJob marks a job CANCELLED with the given message. Idempotent: a
// no-op if the job is already terminal. Distinct from FailJob because
// CANCELLED and FAILED are separate absorbing statuses; an operator
// cancellation must not be reported to clients as a failure.
func (s *Store) CancelJob(ctx context.Context, jobID, errorMessage string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = COALESCE(completed_at, $2), error_message = $3
		WHERE job_id = $4 AND status NOT IN ($5, $6, $7)
	`, models.JobCancelled, now, errorMessage, jobID, models.JobCompleted, models.JobFailed, models.JobCancelled)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// TryCompleteJob completes the job iff all its units are SUCCEEDED and
// none are DLQ/PENDING/RUNNING/RETRY_WAIT. Safe to call concurrently;
// at most one caller's update ever affects a row.
func (s *Store) TryCompleteJob(ctx context.Context, jobID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = $2
		WHERE job_id = $3
		  AND status IN ($4, $5)
		  AND NOT EXISTS (SELECT 1 FROM units WHERE job_id = $3 AND status <> $6)
	`, models.JobCompleted, now, jobID, models.JobSubmitted, models.JobRunning, models.UnitSucceeded)
	if err != nil {
		return false, fmt.Errorf("try complete job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TryFailJobFromDLQ fails the job iff any unit is DLQ. Evaluated before
// TryCompleteJob by the periodic finalizer so a DLQ cannot be masked by a
// late completion.
func (s *Store) TryFailJobFromDLQ(ctx context.Context, jobID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, completed_at = $2, error_message = $3
		WHERE job_id = $4
		  AND status IN ($5, $6)
		  AND EXISTS (SELECT 1 FROM units WHERE job_id = $4 AND status = $7)
	`, models.JobFailed, now, "One or more inputs moved to DLQ", jobID, models.JobSubmitted, models.JobRunning, models.UnitDLQ)
	if err != nil {
		return false, fmt.Errorf("try fail job from dlq: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetUnitForRedrive moves a DLQ unit back to PENDING, clearing attempt
// state. It does not recompute the parent job's status, and the periodic
// finalizer only sweeps non-terminal jobs, so a job that is already
// FAILED or CANCELLED keeps that status.
func (s *Store) ResetUnitForRedrive(ctx context.Context, inputID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE units
		SET status = $1, attempt_count = 0, next_retry_at = NULL, lease_owner = NULL,
		    lease_until = NULL, s3_path = NULL, is_reused = FALSE, error_message = NULL
		WHERE input_id = $2 AND status = $3
	`, models.UnitPending, inputID, models.UnitDLQ)
	if err != nil {
		return fmt.Errorf("reset unit for redrive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnitNotDLQ
	}
	return nil
}

// NonTerminalJobIDs lists jobs not yet in a terminal status, oldest
// first, for the periodic finalizer sweep.
func (s *Store) NonTerminalJobIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id FROM jobs
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY requested_at ASC
		LIMIT $4
	`, models.JobCompleted, models.JobFailed, models.JobCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadUnit fetches a single unit row by id, used by the poller after a
// claim wins to hand Executor the full unit state.
func (s *Store) LoadUnit(ctx context.Context, inputID string) (models.Unit, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT input_id, job_id, index_key, effective_date, asof_indicator, status, attempt_count,
		       next_retry_at, lease_owner, lease_until, s3_path, is_reused, error_message
		FROM units WHERE input_id = $1
	`, inputID)

	var u models.Unit
	var nextRetry, leaseUntil pgtype.Timestamptz
	var leaseOwner, s3Path, errMsg pgtype.Text
	if err := row.Scan(&u.InputID, &u.JobID, &u.IndexKey, &u.EffectiveDate, &u.AsofIndicator, &u.Status,
		&u.AttemptCount, &nextRetry, &leaseOwner, &leaseUntil, &s3Path, &u.IsReused, &errMsg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Unit{}, fmt.Errorf("unit not found: %w", err)
		}
		return models.Unit{}, fmt.Errorf("load unit: %w", err)
	}
	u.NextRetryAt = timestampPtr(nextRetry)
	u.LeaseOwner = textPtr(leaseOwner)
	u.LeaseUntil = timestampPtr(leaseUntil)
	u.S3Path = textPtr(s3Path)
	u.ErrorMessage = textPtr(errMsg)
	return u, nil
}

// JobIDForKey resolves the client-visible job_key to its internal job_id,
// used by the admin surface which only ever sees job_key from callers.
func (s *Store) JobIDForKey(ctx context.Context, jobKey string) (string, error) {
	var jobID string
	err := s.pool.QueryRow(ctx, `SELECT job_id FROM jobs WHERE job_key = $1`, jobKey).Scan(&jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrJobNotFound
		}
		return "", fmt.Errorf("resolve job key: %w", err)
	}
	return jobID, nil
}

// GetJobStatus returns a job's current status, used by Executor's job
// guard before doing any export work.
func (s *Store) GetJobStatus(ctx context.Context, jobID string) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE job_id = $1`, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrJobNotFound
		}
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

// JobCounts returns the aggregate projection used by the admin surface,
// via a single aggregate query.
func (s *Store) JobCounts(ctx context.Context, jobID string) (models.JobCounts, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COUNT(*) FILTER (WHERE status = $5),
			COUNT(*) FILTER (WHERE status = $4 AND is_reused = FALSE),
			COUNT(*) FILTER (WHERE status = $4 AND is_reused = TRUE)
		FROM units WHERE job_id = $1
	`, jobID, models.UnitPending, models.UnitRunning, models.UnitSucceeded, models.UnitDLQ)

	var c models.JobCounts
	if err := row.Scan(&c.Total, &c.Pending, &c.Running, &c.Done, &c.Failed, &c.FilesGenerated, &c.FilesReused); err != nil {
		return models.JobCounts{}, fmt.Errorf("job counts: %w", err)
	}
	return c, nil
}

// JobDetail fetches a job and its units for the admin/status projection.
func (s *Store) JobDetail(ctx context.Context, jobID string) (models.Job, []models.Unit, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, job_key, status, total_inputs, requested_at, started_at, completed_at, error_message
		FROM jobs WHERE job_id = $1
	`, jobID)

	var job models.Job
	var startedAt, completedAt pgtype.Timestamptz
	var errMsg pgtype.Text
	if err := row.Scan(&job.JobID, &job.JobKey, &job.Status, &job.TotalInputs, &job.RequestedAt, &startedAt, &completedAt, &errMsg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, nil, ErrJobNotFound
		}
		return models.Job{}, nil, fmt.Errorf("job detail: %w", err)
	}
	job.StartedAt = timestampPtr(startedAt)
	job.CompletedAt = timestampPtr(completedAt)
	job.ErrorMessage = textPtr(errMsg)

	rows, err := s.pool.Query(ctx, `
		SELECT input_id, job_id, index_key, effective_date, asof_indicator, status, attempt_count,
		       next_retry_at, lease_owner, lease_until, s3_path, is_reused, error_message
		FROM units WHERE job_id = $1 ORDER BY input_id
	`, jobID)
	if err != nil {
		return models.Job{}, nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		var u models.Unit
		var nextRetry, leaseUntil pgtype.Timestamptz
		var leaseOwner, s3Path, uErrMsg pgtype.Text
		if err := rows.Scan(&u.InputID, &u.JobID, &u.IndexKey, &u.EffectiveDate, &u.AsofIndicator, &u.Status,
			&u.AttemptCount, &nextRetry, &leaseOwner, &leaseUntil, &s3Path, &u.IsReused, &uErrMsg); err != nil {
			return models.Job{}, nil, fmt.Errorf("scan unit: %w", err)
		}
		u.NextRetryAt = timestampPtr(nextRetry)
		u.LeaseOwner = textPtr(leaseOwner)
		u.LeaseUntil = timestampPtr(leaseUntil)
		u.S3Path = textPtr(s3Path)
		u.ErrorMessage = textPtr(uErrMsg)
		units = append(units, u)
	}
	return job, units, rows.Err()
}

// ListDLQUnits returns up to limit units currently in DLQ, ordered by
// input_id descending, for the admin DLQ listing. input_id is a random
// UUID, so the order does not reflect when a unit entered DLQ.
func (s *Store) ListDLQUnits(ctx context.Context, limit int) ([]models.Unit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT input_id, job_id, index_key, effective_date, asof_indicator, status, attempt_count,
		       next_retry_at, lease_owner, lease_until, s3_path, is_reused, error_message
		FROM units WHERE status = $1 ORDER BY input_id DESC LIMIT $2
	`, models.UnitDLQ, limit)
	if err != nil {
		return nil, fmt.Errorf("list dlq units: %w", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		var u models.Unit
		var nextRetry, leaseUntil pgtype.Timestamptz
		var leaseOwner, s3Path, errMsg pgtype.Text
		if err := rows.Scan(&u.InputID, &u.JobID, &u.IndexKey, &u.EffectiveDate, &u.AsofIndicator, &u.Status,
			&u.AttemptCount, &nextRetry, &leaseOwner, &leaseUntil, &s3Path, &u.IsReused, &errMsg); err != nil {
			return nil, fmt.Errorf("scan dlq unit: %w", err)
		}
		u.NextRetryAt = timestampPtr(nextRetry)
		u.LeaseOwner = textPtr(leaseOwner)
		u.LeaseUntil = timestampPtr(leaseUntil)
		u.S3Path = textPtr(s3Path)
		u.ErrorMessage = textPtr(errMsg)
		units = append(units, u)
	}
	return units, rows.Err()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timestampPtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}
