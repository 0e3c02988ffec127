package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/veldtlabs/exportq/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to plain errors, which the engine's
// catch-all policy classifies as retryable, and logged with a stack
// trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("processing panicked",
					slog.String("job_id", j.ID.String()),
					slog.Int("attempt", j.AttemptCount),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic processing job %s: %v", j.ID, r)
			}
		}()
		return next(ctx)
	}
}
