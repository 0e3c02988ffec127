package sqlite

import (
	"database/sql"
	"encoding/json"
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

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one jobColumns row into a job.Job.
func scanJob(r rowScanner) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		status      string
		fileIDs     string
		etaSeconds  int64
		reportedAt  sql.NullTime
		completedAt sql.NullTime
	)

	err := r.Scan(
		&idStr, &status, &fileIDs, &j.Progress, &etaSeconds, &reportedAt,
		&j.ArtifactKey, &j.ArtifactSize, &j.ErrorMessage, &j.ErrorRetryable, &j.DeadLettered,
		&j.AttemptCount, &j.MaxAttempts, &j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID, err = id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("exportq/sqlite: corrupt job id %q: %w", idStr, err)
	}
	j.Status = job.Status(status)
	if err := json.Unmarshal([]byte(fileIDs), &j.FileIDs); err != nil {
		return nil, fmt.Errorf("exportq/sqlite: corrupt file_ids for %s: %w", idStr, err)
	}
	j.ETA = time.Duration(etaSeconds) * time.Second
	if reportedAt.Valid {
		t := reportedAt.Time.UTC()
		j.ReportedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()

	return &j, nil
}

// jobArgs flattens a job.Job into the jobColumns insert order.
func jobArgs(j *job.Job) ([]any, error) {
	fileIDs, err := json.Marshal(j.FileIDs)
	if err != nil {
		return nil, fmt.Errorf("exportq/sqlite: marshal file_ids: %w", err)
	}

	var reportedAt, completedAt any
	if j.ReportedAt != nil {
		reportedAt = j.ReportedAt.UTC()
	}
	if j.CompletedAt != nil {
		completedAt = j.CompletedAt.UTC()
	}

	return []any{
		j.ID.String(), string(j.Status), string(fileIDs), j.Progress,
		int64(j.ETA / time.Second), reportedAt,
		j.ArtifactKey, j.ArtifactSize, j.ErrorMessage, j.ErrorRetryable, j.DeadLettered,
		j.AttemptCount, j.MaxAttempts, j.CreatedAt.UTC(), j.UpdatedAt.UTC(), completedAt,
	}, nil
}

// dlqColumns is the select list matching scanDLQ's field order.
const dlqColumns = `id, job_id, file_ids, error, retryable,
	attempt_count, max_attempts, failed_at, created_at`

// scanDLQ reads one dlqColumns row into a dlq.Entry.
func scanDLQ(r rowScanner) (*dlq.Entry, error) {
	var (
		e       dlq.Entry
		idStr   string
		jobID   string
		fileIDs string
	)

	err := r.Scan(
		&idStr, &jobID, &fileIDs, &e.Error, &e.Retryable,
		&e.AttemptCount, &e.MaxAttempts, &e.FailedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseDLQID(idStr)
	if err != nil {
		return nil, fmt.Errorf("exportq/sqlite: corrupt dlq id %q: %w", idStr, err)
	}
	e.JobID, err = id.ParseJobID(jobID)
	if err != nil {
		return nil, fmt.Errorf("exportq/sqlite: corrupt dlq job id %q: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(fileIDs), &e.FileIDs); err != nil {
		return nil, fmt.Errorf("exportq/sqlite: corrupt dlq file_ids for %s: %w", idStr, err)
	}
	e.FailedAt = e.FailedAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()

	return &e, nil
}
