package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/engine"
	"github.com/veldtlabs/exportq/ext"
	"github.com/veldtlabs/exportq/job"
	"github.com/veldtlabs/exportq/middleware"
	"github.com/veldtlabs/exportq/observability"
	"github.com/veldtlabs/exportq/queue"
	"github.com/veldtlabs/exportq/retention"
	"github.com/veldtlabs/exportq/store/sqlite"
	"github.com/veldtlabs/exportq/worker"
)

func newWorkerCmd(flags *rootFlags) *cobra.Command {
	var (
		srcDir      string
		concurrency int
		jobTimeout  time.Duration
		rateLimit   float64
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker that bundles submitted files into zip artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.Default()
			cfg := exportq.DefaultConfig()

			st, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer st.Close()

			q, closeQueue := openQueue(flags)
			defer closeQueue()

			extensions := ext.NewRegistry(logger)
			extensions.Register(observability.NewMetricsExtension())

			eng := engine.New(st, q,
				engine.WithDLQ(dlq.NewService(st)),
				engine.WithExtensions(extensions),
				engine.WithLogger(logger),
			)

			processor := newZipProcessor(srcDir, filepath.Join(flags.dataDir, "artifacts"))
			executor := worker.NewExecutor(eng, q, processor, logger,
				middleware.Recover(logger),
				middleware.Logging(logger),
				middleware.Timeout(jobTimeout),
				middleware.Metrics(),
				middleware.Tracing(),
			)

			poolOpts := []worker.PoolOption{
				worker.WithPoolConcurrency(concurrency),
				worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
				worker.WithVisibilityExtension(cfg.VisibilityTimeout),
				worker.WithExtensions(extensions),
			}
			if rateLimit > 0 {
				poolOpts = append(poolOpts, worker.WithRateLimit(rate.Limit(rateLimit), concurrency))
			}
			pool := worker.NewPool(q, executor, logger, poolOpts...)

			sweeper := retention.NewSweeper(st, retention.WithLogger(logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := pool.Start(ctx); err != nil {
				return err
			}
			if err := sweeper.Start(); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return requeueLoop(gctx, st, q, logger, cfg.PollInterval*30)
			})
			g.Go(func() error {
				<-gctx.Done()
				sweeper.Stop()

				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				return pool.Stop(stopCtx)
			})

			logger.Info("worker running", slog.String("data_dir", flags.dataDir))
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&srcDir, "src-dir", ".", "directory holding the referenced source files")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent jobs")
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 10*time.Minute, "per-attempt processing timeout")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "maximum dequeues per second (0 disables)")
	return cmd
}

// requeueLoop periodically re-enqueues queued jobs from the store. It
// rescues work whose queue message was lost (process restart with the
// in-process queue, dropped Redis message). Duplicate deliveries are
// harmless: the claim rules absorb them.
func requeueLoop(ctx context.Context, st *sqlite.Store, q queue.Queue, logger *slog.Logger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		jobs, err := st.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{})
		if err != nil {
			logger.Warn("requeue sweep failed", slog.String("error", err.Error()))
			continue
		}
		for _, j := range jobs {
			if err := q.Enqueue(ctx, j.ID, 0); err != nil {
				logger.Warn("requeue failed",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
