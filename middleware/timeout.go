package middleware

import (
	"context"
	"time"

	"github.com/veldtlabs/exportq/job"
)

// Timeout returns middleware that bounds each processing invocation to
// d. When the deadline is exceeded the context is cancelled and the
// handler should return context.DeadlineExceeded, which the engine
// treats as retryable. A non-positive d disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
