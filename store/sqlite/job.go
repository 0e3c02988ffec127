package sqlite

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
	args, err := jobArgs(j)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exportq_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return exportq.ErrJobAlreadyExists
		}
		return fmt.Errorf("exportq/sqlite: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM exportq_jobs WHERE id = ?`,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, exportq.ErrJobNotFound
		}
		return nil, fmt.Errorf("exportq/sqlite: get job: %w", err)
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

	args, err := jobArgs(j)
	if err != nil {
		return err
	}
	// Drop the leading id column; it keys the WHERE instead.
	args = append(args[1:], j.ID.String(), string(expect.Status), expect.Attempt)

	res, err := s.db.ExecContext(ctx, `
		UPDATE exportq_jobs SET
			status = ?, file_ids = ?, progress = ?, eta_seconds = ?, reported_at = ?,
			artifact_key = ?, artifact_size = ?, error_message = ?, error_retryable = ?, dead_lettered = ?,
			attempt_count = ?, max_attempts = ?, created_at = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ? AND attempt_count = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("exportq/sqlite: swap job: %w", err)
	}

	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows > 0 {
		return nil
	}

	// Zero rows: the job is gone, or another writer won. Distinguish.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM exportq_jobs WHERE id = ?)`, j.ID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("exportq/sqlite: swap job: %w", err)
	}
	if !exists {
		return exportq.ErrJobNotFound
	}
	return exportq.ErrVersionConflict
}

// ListJobsByStatus returns jobs in the given status ordered by
// creation time.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM exportq_jobs WHERE status = ? ORDER BY created_at ASC`
	args := []any{string(status)}

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires LIMIT before OFFSET.
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exportq/sqlite: list jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("exportq/sqlite: list jobs scan: %w", scanErr)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exportq/sqlite: list jobs by status: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM exportq_jobs`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("exportq/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// PurgeTerminalJobs removes completed and failed jobs whose CompletedAt
// is before the given time.
func (s *Store) PurgeTerminalJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM exportq_jobs
		WHERE status IN ('completed', 'failed')
		  AND completed_at IS NOT NULL
		  AND completed_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("exportq/sqlite: purge terminal jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}
