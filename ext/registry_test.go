package ext_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veldtlabs/exportq/ext"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
)

// recorder implements a subset of the hook interfaces.
type recorder struct {
	queued    int
	completed int
	failed    int
	err       error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobQueued(_ context.Context, _ *job.Job) error {
	r.queued++
	return r.err
}

func (r *recorder) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	r.completed++
	return r.err
}

func (r *recorder) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	r.failed++
	return r.err
}

func testJob() *job.Job {
	return &job.Job{ID: id.NewJobID(), Status: job.StatusQueued}
}

func TestRegistry_DispatchesToImplementedHooks(t *testing.T) {
	reg := ext.NewRegistry(nil)
	rec := &recorder{}
	reg.Register(rec)

	ctx := context.Background()
	j := testJob()

	reg.EmitJobQueued(ctx, j)
	reg.EmitJobCompleted(ctx, j, time.Second)
	reg.EmitJobFailed(ctx, j, errors.New("boom"))

	// Hooks the recorder does not implement must be safe no-ops.
	reg.EmitJobClaimed(ctx, j)
	reg.EmitJobProgress(ctx, j, job.Progress{Percent: 50})
	reg.EmitJobRequeued(ctx, j, time.Second)
	reg.EmitJobDeadLettered(ctx, j, errors.New("boom"))
	reg.EmitShutdown(ctx)

	if rec.queued != 1 || rec.completed != 1 || rec.failed != 1 {
		t.Errorf("hook counts = %d/%d/%d, want 1/1/1", rec.queued, rec.completed, rec.failed)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	reg := ext.NewRegistry(nil)
	rec := &recorder{err: errors.New("observer down")}
	reg.Register(rec)

	// Must not panic or propagate.
	reg.EmitJobQueued(context.Background(), testJob())
	if rec.queued != 1 {
		t.Errorf("queued hook calls = %d, want 1", rec.queued)
	}
}

func TestRegistry_MultipleExtensions(t *testing.T) {
	reg := ext.NewRegistry(nil)
	a := &recorder{}
	b := &recorder{}
	reg.Register(a)
	reg.Register(b)

	reg.EmitJobQueued(context.Background(), testJob())

	if a.queued != 1 || b.queued != 1 {
		t.Errorf("queued counts = %d/%d, want 1/1", a.queued, b.queued)
	}
	if len(reg.Extensions()) != 2 {
		t.Errorf("extensions = %d, want 2", len(reg.Extensions()))
	}
}
