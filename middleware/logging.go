package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/veldtlabs/exportq/job"
)

// Logging returns middleware that logs processing start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("processing started",
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.AttemptCount),
			slog.Int("files", len(j.FileIDs)),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("processing failed",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.AttemptCount),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("processing finished",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.AttemptCount),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
