package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, exportq.ErrStoreClosed) {
		t.Fatalf("Ping after Close = %v, want ErrStoreClosed", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, exportq.ErrStoreClosed) {
		t.Fatalf("GetJob after Close = %v, want ErrStoreClosed", err)
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func newJob(status job.Status) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		ID:          id.NewJobID(),
		Status:      status,
		FileIDs:     []string{"file_a", "file_b"},
		MaxAttempts: 4,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestJobCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob(job.StatusQueued)

	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, exportq.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusQueued {
		t.Fatalf("got status %q, want %q", got.Status, job.StatusQueued)
	}
	if len(got.FileIDs) != 2 {
		t.Fatalf("got %d file ids, want 2", len(got.FileIDs))
	}

	// Returned record is a copy; mutating it must not affect the store.
	got.Status = job.StatusFailed
	got.FileIDs[0] = "mutated"
	again, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if again.Status != job.StatusQueued || again.FileIDs[0] != "file_a" {
		t.Fatal("store record was mutated through a returned copy")
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, exportq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSwapJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob(job.StatusQueued)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Claim: queued/0 → processing/1.
	claimed := j.Clone()
	claimed.Status = job.StatusProcessing
	claimed.AttemptCount = 1
	expect := job.Version{Status: job.StatusQueued, Attempt: 0}
	if err := s.SwapJob(ctx, claimed, expect); err != nil {
		t.Fatalf("SwapJob: %v", err)
	}

	// A second swap against the same expectation must lose.
	if err := s.SwapJob(ctx, claimed, expect); !errors.Is(err, exportq.ErrVersionConflict) {
		t.Fatalf("stale SwapJob = %v, want ErrVersionConflict", err)
	}

	// Attempt mismatch alone is also a conflict.
	bad := job.Version{Status: job.StatusProcessing, Attempt: 2}
	if err := s.SwapJob(ctx, claimed, bad); !errors.Is(err, exportq.ErrVersionConflict) {
		t.Fatalf("attempt-mismatch SwapJob = %v, want ErrVersionConflict", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusProcessing || got.AttemptCount != 1 {
		t.Fatalf("got (%s, %d), want (processing, 1)", got.Status, got.AttemptCount)
	}

	missing := newJob(job.StatusQueued)
	if err := s.SwapJob(ctx, missing, job.Version{Status: job.StatusQueued}); !errors.Is(err, exportq.ErrJobNotFound) {
		t.Fatalf("SwapJob on unknown id = %v, want ErrJobNotFound", err)
	}
}

func TestSwapJobRejectsInvalidStatus(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob(job.StatusQueued)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	bad := j.Clone()
	bad.Status = job.Status("cancelled")
	err := s.SwapJob(ctx, bad, job.Version{Status: job.StatusQueued, Attempt: 0})
	if !errors.Is(err, exportq.ErrInvalidTransition) {
		t.Fatalf("SwapJob with invalid status = %v, want ErrInvalidTransition", err)
	}
}

func TestListJobsByStatus(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := range 5 {
		j := newJob(job.StatusQueued)
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	done := newJob(job.StatusCompleted)
	if err := s.CreateJob(ctx, done); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	queued, err := s.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(queued) != 5 {
		t.Fatalf("got %d queued jobs, want 5", len(queued))
	}
	for i := 1; i < len(queued); i++ {
		if queued[i].CreatedAt.Before(queued[i-1].CreatedAt) {
			t.Fatal("list not ordered by creation time")
		}
	}

	page, err := s.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("got %d jobs with offset 4, want 1", len(page))
	}
}

func TestCountJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for range 3 {
		if err := s.CreateJob(ctx, newJob(job.StatusQueued)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	if err := s.CreateJob(ctx, newJob(job.StatusFailed)); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	total, err := s.CountJobs(ctx, job.CountOpts{})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}

	failed, err := s.CountJobs(ctx, job.CountOpts{Status: job.StatusFailed})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
}

func TestPurgeTerminalJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	oldDone := newJob(job.StatusCompleted)
	oldDone.CompletedAt = &old
	recentDone := newJob(job.StatusCompleted)
	recentDone.CompletedAt = &recent
	active := newJob(job.StatusProcessing)

	for _, j := range []*job.Job{oldDone, recentDone, active} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	n, err := s.PurgeTerminalJobs(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeTerminalJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d jobs, want 1", n)
	}
	if _, err := s.GetJob(ctx, oldDone.ID); !errors.Is(err, exportq.ErrJobNotFound) {
		t.Fatal("old terminal job survived purge")
	}
	if _, err := s.GetJob(ctx, active.ID); err != nil {
		t.Fatalf("active job was purged: %v", err)
	}
}

// ──────────────────────────────────────────────────
// DLQ Store tests
// ──────────────────────────────────────────────────

func newDLQEntry(failedAt time.Time) *dlq.Entry {
	return &dlq.Entry{
		ID:           id.NewDLQID(),
		JobID:        id.NewJobID(),
		FileIDs:      []string{"file_a"},
		Error:        "zip bundling failed",
		AttemptCount: 4,
		MaxAttempts:  4,
		FailedAt:     failedAt,
		CreatedAt:    failedAt,
	}
}

func TestDLQPushListGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	var last *dlq.Entry
	for i := range 3 {
		e := newDLQEntry(base.Add(time.Duration(i) * time.Minute))
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("PushDLQ: %v", err)
		}
		last = e
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].ID != last.ID {
		t.Fatalf("first entry = %s, want newest %s", entries[0].ID, last.ID)
	}

	got, err := s.GetDLQ(ctx, last.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.Error != "zip bundling failed" {
		t.Fatalf("got error %q", got.Error)
	}

	if _, err := s.GetDLQ(ctx, id.NewDLQID()); !errors.Is(err, exportq.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}
}

func TestDLQPurgeAndCount(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := newDLQEntry(time.Now().UTC().Add(-72 * time.Hour))
	recent := newDLQEntry(time.Now().UTC())
	for _, e := range []*dlq.Entry{old, recent} {
		if err := s.PushDLQ(ctx, e); err != nil {
			t.Fatalf("PushDLQ: %v", err)
		}
	}

	n, err := s.PurgeDLQ(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d entries, want 1", n)
	}

	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
