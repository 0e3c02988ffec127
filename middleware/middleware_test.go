package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
	"github.com/veldtlabs/exportq/middleware"
)

func testJob() *job.Job {
	return &job.Job{
		ID:           id.NewJobID(),
		Status:       job.StatusProcessing,
		FileIDs:      []string{"file_a"},
		AttemptCount: 1,
	}
}

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := middleware.Chain(mw("outer"), mw("inner"))
	err := chain(context.Background(), testJob(), func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	err := chain(context.Background(), testJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}
	if !called {
		t.Error("handler not called through empty chain")
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	rec := middleware.Recover(slog.Default())

	err := rec(context.Background(), testJob(), func(_ context.Context) error {
		panic("zip writer exploded")
	})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestRecover_PassesThroughErrors(t *testing.T) {
	rec := middleware.Recover(slog.Default())
	want := errors.New("plain failure")

	err := rec(context.Background(), testJob(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}

func TestTimeout_CancelsSlowHandler(t *testing.T) {
	to := middleware.Timeout(20 * time.Millisecond)

	err := to(context.Background(), testJob(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestTimeout_Disabled(t *testing.T) {
	to := middleware.Timeout(0)

	err := to(context.Background(), testJob(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline with timeout disabled")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetrics_PassThrough(t *testing.T) {
	// No global MeterProvider configured: instruments are noops and the
	// middleware must still propagate results faithfully.
	m := middleware.Metrics()

	want := errors.New("boom")
	if err := m(context.Background(), testJob(), func(_ context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
	if err := m(context.Background(), testJob(), func(_ context.Context) error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTracing_PassThrough(t *testing.T) {
	tr := middleware.Tracing()

	want := errors.New("boom")
	if err := tr(context.Background(), testJob(), func(_ context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}
