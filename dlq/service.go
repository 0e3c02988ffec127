package dlq

import (
	"context"
	"time"

	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
)

// Service provides high-level dead-letter operations over a Store.
type Service struct {
	store Store
}

// NewService creates a DLQ service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Push builds an Entry from a terminally failed job and persists it.
// The lifecycle engine calls this exactly once per dead-lettered job:
// only the writer that won the terminal compare-and-swap pushes.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:           id.NewDLQID(),
		JobID:        j.ID,
		FileIDs:      append([]string(nil), j.FileIDs...),
		Error:        jobErr.Error(),
		Retryable:    j.ErrorRetryable,
		AttemptCount: j.AttemptCount,
		MaxAttempts:  j.MaxAttempts,
		FailedAt:     now,
		CreatedAt:    now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Store returns the underlying DLQ store for direct access to List,
// Get, Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
