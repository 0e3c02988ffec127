package postgres

import (
	"fmt"
	"time"

	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
)

// jobColumns is the select list matching scanJob's field order.
const jobColumns = `id, status, file_ids, progress, eta_seconds, reported_at,
	artifact_key, artifact_size, error_message, error_retryable, dead_lettered,
	attempt_count, max_attempts, created_at, updated_at, completed_at`

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one jobColumns row into a job.Job.
func scanJob(r rowScanner) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		status      string
		etaSeconds  int64
		reportedAt  *time.Time
		completedAt *time.Time
	)

	err := r.Scan(
		&idStr, &status, &j.FileIDs, &j.Progress, &etaSeconds, &reportedAt,
		&j.ArtifactKey, &j.ArtifactSize, &j.ErrorMessage, &j.ErrorRetryable, &j.DeadLettered,
		&j.AttemptCount, &j.MaxAttempts, &j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID, err = id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("exportq/postgres: corrupt job id %q: %w", idStr, err)
	}
	j.Status = job.Status(status)
	j.ETA = time.Duration(etaSeconds) * time.Second
	j.ReportedAt = reportedAt
	j.CompletedAt = completedAt

	return &j, nil
}

// jobArgs flattens a job.Job into the jobColumns insert order.
func jobArgs(j *job.Job) []any {
	return []any{
		j.ID.String(), string(j.Status), j.FileIDs, j.Progress,
		int64(j.ETA / time.Second), j.ReportedAt,
		j.ArtifactKey, j.ArtifactSize, j.ErrorMessage, j.ErrorRetryable, j.DeadLettered,
		j.AttemptCount, j.MaxAttempts, j.CreatedAt.UTC(), j.UpdatedAt.UTC(), j.CompletedAt,
	}
}

// dlqColumns is the select list matching scanDLQ's field order.
const dlqColumns = `id, job_id, file_ids, error, retryable,
	attempt_count, max_attempts, failed_at, created_at`

// scanDLQ reads one dlqColumns row into a dlq.Entry.
func scanDLQ(r rowScanner) (*dlq.Entry, error) {
	var (
		e     dlq.Entry
		idStr string
		jobID string
	)

	err := r.Scan(
		&idStr, &jobID, &e.FileIDs, &e.Error, &e.Retryable,
		&e.AttemptCount, &e.MaxAttempts, &e.FailedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("exportq/postgres: corrupt dlq id %q: %w", idStr, err)
	}
	e.JobID, err = id.ParseJobID(jobID)
	if err != nil {
		return nil, fmt.Errorf("exportq/postgres: corrupt dlq job id %q: %w", jobID, err)
	}

	return &e, nil
}
