// Package observability provides an OpenTelemetry-based metrics
// extension recording system-wide lifecycle counters: submissions,
// completions, retries, terminal failures, and dead letter entries.
//
// For per-attempt processing metrics and tracing, see the middleware
// package: middleware.Metrics() and middleware.Tracing().
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/veldtlabs/exportq/ext"
	"github.com/veldtlabs/exportq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobQueued       = (*MetricsExtension)(nil)
	_ ext.JobClaimed      = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRequeued     = (*MetricsExtension)(nil)
	_ ext.JobFailed       = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/veldtlabs/exportq/observability"

// MetricsExtension records lifecycle counters via OpenTelemetry.
// Register it on the engine's extension registry to track submission
// rates, completion counts and latency, retry counts, and dead letter
// volume. With no MeterProvider configured the instruments are noops.
type MetricsExtension struct {
	queued       metric.Int64Counter
	claimed      metric.Int64Counter
	completed    metric.Int64Counter
	requeued     metric.Int64Counter
	failed       metric.Int64Counter
	deadLettered metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Instrument creation errors fall back to noop
// instruments per the OTel API contract.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	e := &MetricsExtension{}
	e.queued, _ = meter.Int64Counter("exportq.jobs.queued",
		metric.WithDescription("Jobs submitted or requeued for retry"),
		metric.WithUnit("{job}"),
	)
	e.claimed, _ = meter.Int64Counter("exportq.jobs.claimed",
		metric.WithDescription("Job claims granted to workers"),
		metric.WithUnit("{job}"),
	)
	e.completed, _ = meter.Int64Counter("exportq.jobs.completed",
		metric.WithDescription("Jobs completed with an artifact"),
		metric.WithUnit("{job}"),
	)
	e.requeued, _ = meter.Int64Counter("exportq.jobs.requeued",
		metric.WithDescription("Retryable failures sent back to the queue"),
		metric.WithUnit("{job}"),
	)
	e.failed, _ = meter.Int64Counter("exportq.jobs.failed",
		metric.WithDescription("Jobs terminally failed"),
		metric.WithUnit("{job}"),
	)
	e.deadLettered, _ = meter.Int64Counter("exportq.jobs.dead_lettered",
		metric.WithDescription("Entries recorded on the dead letter channel"),
		metric.WithUnit("{job}"),
	)
	e.duration, _ = meter.Float64Histogram("exportq.jobs.duration",
		metric.WithDescription("Submission-to-completion latency in seconds"),
		metric.WithUnit("s"),
	)
	return e
}

// Name implements ext.Extension.
func (e *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobQueued implements ext.JobQueued.
func (e *MetricsExtension) OnJobQueued(ctx context.Context, _ *job.Job) error {
	e.queued.Add(ctx, 1)
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (e *MetricsExtension) OnJobClaimed(ctx context.Context, j *job.Job) error {
	e.claimed.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", j.AttemptCount)))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (e *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	e.completed.Add(ctx, 1)
	e.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.Int("attempts", j.AttemptCount)))
	return nil
}

// OnJobRequeued implements ext.JobRequeued.
func (e *MetricsExtension) OnJobRequeued(ctx context.Context, j *job.Job, _ time.Duration) error {
	e.requeued.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", j.AttemptCount)))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (e *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	e.failed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retryable", j.ErrorRetryable)))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *MetricsExtension) OnJobDeadLettered(ctx context.Context, _ *job.Job, _ error) error {
	e.deadLettered.Add(ctx, 1)
	return nil
}
