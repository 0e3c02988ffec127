package job

import (
	"context"
	"time"

	"github.com/veldtlabs/exportq/id"
)

// Version identifies the (status, attemptCount) pair a compare-and-swap
// expects to find. Every state transition is applied as a CAS keyed by
// job id, which prevents lost updates between a stale and a fresh worker
// without any cross-job locking.
type Version struct {
	Status  Status
	Attempt int
}

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs. Implementations must
// reject statuses outside the four-member enum and apply SwapJob as a
// single atomic, serializable update.
type Store interface {
	// CreateJob persists a new job. Returns ErrJobAlreadyExists if the
	// id is taken.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves the latest committed record for a job. Returns
	// ErrJobNotFound for unknown ids. It never blocks on in-flight
	// transitions.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// SwapJob atomically replaces the stored record with j if and only
	// if the stored (status, attemptCount) still equals expect. Returns
	// ErrVersionConflict when another writer got there first and
	// ErrJobNotFound for unknown ids.
	SwapJob(ctx context.Context, j *Job, expect Version) error

	// ListJobsByStatus returns jobs in the given status ordered by
	// creation time.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeTerminalJobs removes completed and failed jobs whose
	// CompletedAt is before the given time. Returns the number removed.
	// Only the retention sweeper calls this; the lifecycle engine never
	// deletes jobs.
	PurgeTerminalJobs(ctx context.Context, before time.Time) (int64, error)
}
