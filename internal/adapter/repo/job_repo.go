package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"masterpost/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, user_id, status, pipeline, tier, total_files, processed, failed, settings_json, error_message, created_at, updated_at`

// Create inserts a new job record in the uploaded state.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, status, pipeline, tier, total_files, processed, failed, settings_json, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Status,
		job.Pipeline,
		job.Tier,
		job.TotalFiles,
		job.Processed,
		job.Failed,
		nullableBytes(job.SettingsJSON),
		job.ErrorMessage,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE id = $1;
`
	return scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// UpdateStatus moves the job to a new lifecycle state. An empty errMsg leaves
// the stored message untouched so a failure reason survives later updates.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	query := `
UPDATE jobs
SET status = $2,
    updated_at = NOW(),
    error_message = COALESCE(NULLIF($3, ''), error_message)
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateProgress writes the per-image counters. Called once per completed
// image by the single collector goroutine of the running job.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, processed, failed int) error {
	query := `
UPDATE jobs
SET processed = $2,
    failed = $3,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, processed, failed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkProcessing moves a job from uploaded to processing. The status check
// lives inside the UPDATE so only one of several concurrent callers wins; the
// rest see the state the winner left behind.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) error {
	query := `
UPDATE jobs
SET status = 'processing',
    updated_at = NOW()
WHERE id = $1 AND status = 'uploaded';
`
	tag, err := r.pool.Exec(ctx, query, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var status domain.JobStatus
	err = r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidState, jobID, status)
}

// ClaimUploaded atomically takes the oldest uploaded job and marks it
// processing. FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming
// the same row.
func (r *JobRepositoryPG) ClaimUploaded(ctx context.Context) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM jobs
    WHERE status = 'uploaded'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE jobs
    SET status = 'processing', updated_at = NOW()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING ` + jobColumns + `
)
SELECT * FROM claimed;
`
	return scanJob(r.pool.QueryRow(ctx, query))
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.Pipeline,
		&job.Tier,
		&job.TotalFiles,
		&job.Processed,
		&job.Failed,
		&job.SettingsJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
