package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exportq_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		jobArgs(j)...,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return exportq.ErrJobAlreadyExists
		}
		return fmt.Errorf("exportq/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM exportq_jobs WHERE id = $1`,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, exportq.ErrJobNotFound
		}
		return nil, fmt.Errorf("exportq/postgres: get job: %w", err)
	}
	return j, nil
}

// SwapJob replaces the stored record if and only if the stored
// (status, attemptCount) still equals expect. The WHERE clause carries
// the expectation, so the swap is a single atomic statement.
func (s *Store) SwapJob(ctx context.Context, j *job.Job, expect job.Version) error {
	if !j.Status.Valid() {
		return exportq.ErrInvalidTransition
	}

	args := jobArgs(j)
	// Drop the leading id column; it keys the WHERE instead.
	args = append(args[1:], j.ID.String(), string(expect.Status), expect.Attempt)

	tag, err := s.pool.Exec(ctx, `
		UPDATE exportq_jobs SET
			status = $1, file_ids = $2, progress = $3, eta_seconds = $4, reported_at = $5,
			artifact_key = $6, artifact_size = $7, error_message = $8, error_retryable = $9, dead_lettered = $10,
			attempt_count = $11, max_attempts = $12, created_at = $13, updated_at = $14, completed_at = $15
		WHERE id = $16 AND status = $17 AND attempt_count = $18`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("exportq/postgres: swap job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: the job is gone, or another writer won. Distinguish.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exportq_jobs WHERE id = $1)`, j.ID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("exportq/postgres: swap job: %w", err)
	}
	if !exists {
		return exportq.ErrJobNotFound
	}
	return exportq.ErrVersionConflict
}

// ListJobsByStatus returns jobs in the given status ordered by
// creation time.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM exportq_jobs WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(status)}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exportq/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("exportq/postgres: list jobs scan: %w", scanErr)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exportq/postgres: list jobs by status: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM exportq_jobs`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("exportq/postgres: count jobs: %w", err)
	}
	return count, nil
}

// PurgeTerminalJobs removes completed and failed jobs whose CompletedAt
// is before the given time.
func (s *Store) PurgeTerminalJobs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM exportq_jobs
		WHERE status IN ('completed', 'failed')
		  AND completed_at IS NOT NULL
		  AND completed_at < $1`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("exportq/postgres: purge terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
