// Package ext defines the extension system for exportq. Extensions are
// notified of lifecycle events (job queued, claimed, completed, failed,
// dead-lettered, etc.) and can react to them: logging, metrics,
// operator alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/veldtlabs/exportq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobQueued is called after a job is created and enqueued by Submit,
// and again after a retry requeue.
type JobQueued interface {
	OnJobQueued(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when a worker successfully claims a job.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job) error
}

// JobProgress is called when a progress report is accepted.
type JobProgress interface {
	OnJobProgress(ctx context.Context, j *job.Job, p job.Progress) error
}

// JobCompleted is called after a job transitions to completed.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRequeued is called when a retryable failure sends a job back to
// queued with a backoff delay.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, j *job.Job, delay time.Duration) error
}

// JobFailed is called when a job transitions to failed (terminally).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobDeadLettered is called when a terminally failed job is recorded on
// the dead letter channel.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
