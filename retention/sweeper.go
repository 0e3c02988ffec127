// Package retention removes aged terminal records. Completed and
// failed jobs, and dead letter entries, are kept for a grace period so
// clients can still poll outcomes and operators can inspect failures,
// then swept on a cron schedule.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/veldtlabs/exportq/store"
)

// Default grace periods before terminal records are eligible for
// removal.
const (
	DefaultJobRetention = 72 * time.Hour
	DefaultDLQRetention = 14 * 24 * time.Hour
)

// defaultSchedule runs the sweep at the top of every hour.
const defaultSchedule = "@hourly"

// Sweeper purges aged terminal jobs and dead letter entries on a cron
// schedule.
type Sweeper struct {
	store    store.Store
	logger   *slog.Logger
	schedule string
	jobGrace time.Duration
	dlqGrace time.Duration

	cron    *cron.Cron
	entryID cron.EntryID
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithSchedule sets the cron expression governing sweep runs. Standard
// five-field expressions and descriptors like "@hourly" are accepted.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) { s.schedule = spec }
}

// WithJobRetention sets how long terminal jobs are kept after
// completion.
func WithJobRetention(d time.Duration) Option {
	return func(s *Sweeper) { s.jobGrace = d }
}

// WithDLQRetention sets how long dead letter entries are kept.
func WithDLQRetention(d time.Duration) Option {
	return func(s *Sweeper) { s.dlqGrace = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// NewSweeper creates a Sweeper over the given store.
func NewSweeper(st store.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    st,
		logger:   slog.Default(),
		schedule: defaultSchedule,
		jobGrace: DefaultJobRetention,
		dlqGrace: DefaultDLQRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the sweep and begins running it. Returns an error if
// the cron expression does not parse.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()

	s.logger.Info("retention sweeper started",
		slog.String("schedule", s.schedule),
		slog.Duration("job_retention", s.jobGrace),
		slog.Duration("dlq_retention", s.dlqGrace),
	)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("retention sweeper stopped")
}

// Sweep runs one purge pass immediately. Failures are logged and do not
// stop the other purge; a missed sweep is retried on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	jobs, err := s.store.PurgeTerminalJobs(ctx, now.Add(-s.jobGrace))
	if err != nil {
		s.logger.Error("purge terminal jobs failed", slog.String("error", err.Error()))
	}

	entries, err := s.store.PurgeDLQ(ctx, now.Add(-s.dlqGrace))
	if err != nil {
		s.logger.Error("purge dlq failed", slog.String("error", err.Error()))
	}

	if jobs > 0 || entries > 0 {
		s.logger.Info("retention sweep complete",
			slog.Int64("jobs_purged", jobs),
			slog.Int64("dlq_purged", entries),
		)
	}
}
