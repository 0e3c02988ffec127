package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/artifact"
	"github.com/veldtlabs/exportq/backoff"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/engine"
	"github.com/veldtlabs/exportq/ext"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
	"github.com/veldtlabs/exportq/middleware"
	memqueue "github.com/veldtlabs/exportq/queue/memory"
	memstore "github.com/veldtlabs/exportq/store/memory"
	"github.com/veldtlabs/exportq/worker"
)

type testRig struct {
	store  *memstore.Store
	queue  *memqueue.Queue
	engine *engine.Engine
	exts   *ext.Registry
}

func newRig(t *testing.T, proc worker.Processor, concurrency int) (*testRig, *worker.Pool) {
	t.Helper()
	logger := slog.Default()
	s := memstore.New()
	q := memqueue.New()
	t.Cleanup(func() { _ = q.Close() })

	extensions := ext.NewRegistry(logger)
	eng := engine.New(s, q,
		engine.WithDLQ(dlq.NewService(s)),
		engine.WithController(backoff.NewController(backoff.NewConstant(time.Millisecond), 3)),
		engine.WithExtensions(extensions),
	)

	executor := worker.NewExecutor(eng, q, proc, logger, middleware.Recover(logger))
	pool := worker.NewPool(q, executor, logger,
		worker.WithPoolConcurrency(concurrency),
		worker.WithHeartbeatInterval(20*time.Millisecond),
		worker.WithVisibilityExtension(time.Minute),
		worker.WithExtensions(extensions),
	)

	return &testRig{store: s, queue: q, engine: eng, exts: extensions}, pool
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func stopPool(t *testing.T, pool *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	proc := worker.ProcessorFunc(func(_ context.Context, _ []string, _ func(job.Progress)) (artifact.Location, error) {
		return artifact.Location{}, nil
	})
	_, pool := newRig(t, proc, 2)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	// Double start is a no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("double-start error: %v", err)
	}

	stopPool(t, pool)
	// Double stop is a no-op.
	stopPool(t, pool)
}

func TestPool_ProcessesJob(t *testing.T) {
	var processed atomic.Bool
	proc := worker.ProcessorFunc(func(_ context.Context, files []string, report func(job.Progress)) (artifact.Location, error) {
		if len(files) != 2 {
			t.Errorf("got %d files, want 2", len(files))
		}
		report(job.Progress{Percent: 50})
		processed.Store(true)
		return artifact.Location{Key: "jobs/bundle.zip", Size: 4096}, nil
	})
	rig, pool := newRig(t, proc, 1)
	ctx := context.Background()

	v, err := rig.engine.Submit(ctx, []string{"file_a", "file_b"})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	jobID, _ := id.ParseJobID(v.ID)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, processed.Load)

	waitFor(t, func() bool {
		got, getErr := rig.store.GetJob(ctx, jobID)
		return getErr == nil && got.Status == job.StatusCompleted
	})
	stopPool(t, pool)

	got, err := rig.store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.ArtifactKey != "jobs/bundle.zip" || got.ArtifactSize != 4096 {
		t.Errorf("artifact = (%q, %d), want (jobs/bundle.zip, 4096)", got.ArtifactKey, got.ArtifactSize)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestPool_RetriesThenDeadLetters(t *testing.T) {
	var attempts atomic.Int32
	proc := worker.ProcessorFunc(func(_ context.Context, _ []string, _ func(job.Progress)) (artifact.Location, error) {
		attempts.Add(1)
		return artifact.Location{}, errors.New("object store unavailable")
	})
	rig, pool := newRig(t, proc, 1)
	ctx := context.Background()

	v, err := rig.engine.Submit(ctx, []string{"file_a"})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	jobID, _ := id.ParseJobID(v.ID)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool {
		got, getErr := rig.store.GetJob(ctx, jobID)
		return getErr == nil && got.Status == job.StatusFailed
	})
	stopPool(t, pool)

	if n := attempts.Load(); n != 3 {
		t.Errorf("processor ran %d times, want 3 (full budget)", n)
	}

	got, err := rig.store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if !got.DeadLettered {
		t.Error("expected job to be dead-lettered")
	}
	count, err := rig.store.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("count dlq error: %v", err)
	}
	if count != 1 {
		t.Errorf("dlq count = %d, want 1", count)
	}
}

func TestPool_PermanentFailureSkipsRetries(t *testing.T) {
	var attempts atomic.Int32
	proc := worker.ProcessorFunc(func(_ context.Context, _ []string, _ func(job.Progress)) (artifact.Location, error) {
		attempts.Add(1)
		return artifact.Location{}, exportq.Permanentf("file not found")
	})
	rig, pool := newRig(t, proc, 1)
	ctx := context.Background()

	v, err := rig.engine.Submit(ctx, []string{"file_a"})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	jobID, _ := id.ParseJobID(v.ID)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool {
		got, getErr := rig.store.GetJob(ctx, jobID)
		return getErr == nil && got.Status == job.StatusFailed
	})
	stopPool(t, pool)

	if n := attempts.Load(); n != 1 {
		t.Errorf("processor ran %d times, want 1", n)
	}
	got, _ := rig.store.GetJob(ctx, jobID)
	if got.ErrorMessage != "file not found" {
		t.Errorf("error message = %q, want %q", got.ErrorMessage, "file not found")
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	var attempts atomic.Int32
	proc := worker.ProcessorFunc(func(_ context.Context, _ []string, _ func(job.Progress)) (artifact.Location, error) {
		attempts.Add(1)
		panic("zip writer exploded")
	})
	rig, pool := newRig(t, proc, 1)
	ctx := context.Background()

	v, err := rig.engine.Submit(ctx, []string{"file_a"})
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	jobID, _ := id.ParseJobID(v.ID)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	// Panics are converted to retryable errors, so the full budget burns.
	waitFor(t, func() bool {
		got, getErr := rig.store.GetJob(ctx, jobID)
		return getErr == nil && got.Status == job.StatusFailed
	})
	stopPool(t, pool)

	if n := attempts.Load(); n != 3 {
		t.Errorf("processor ran %d times, want 3", n)
	}
}

func TestPool_ExtensionFires(t *testing.T) {
	proc := worker.ProcessorFunc(func(_ context.Context, _ []string, _ func(job.Progress)) (artifact.Location, error) {
		return artifact.Location{Key: "jobs/x.zip", Size: 1}, nil
	})
	rig, pool := newRig(t, proc, 1)
	ctx := context.Background()

	tracker := &trackingExt{}
	rig.exts.Register(tracker)

	if _, err := rig.engine.Submit(ctx, []string{"file_a"}); err != nil {
		t.Fatalf("submit error: %v", err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, tracker.completed.Load)
	stopPool(t, pool)

	if !tracker.claimed.Load() {
		t.Error("expected OnJobClaimed to fire")
	}
	if !tracker.shutdown.Load() {
		t.Error("expected OnShutdown to fire")
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingExt records which hooks fired.
type trackingExt struct {
	claimed   atomic.Bool
	completed atomic.Bool
	shutdown  atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnJobClaimed(_ context.Context, _ *job.Job) error {
	e.claimed.Store(true)
	return nil
}

func (e *trackingExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *trackingExt) OnShutdown(_ context.Context) error {
	e.shutdown.Store(true)
	return nil
}
