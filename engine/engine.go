package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/artifact"
	"github.com/veldtlabs/exportq/backoff"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/ext"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
	"github.com/veldtlabs/exportq/queue"
)

// casAttempts bounds the read-modify-swap retry loop of each operation.
// Conflicts on a single job are rare (two racing writers at most), so
// hitting the bound indicates something is badly wrong.
const casAttempts = 5

// Lease is the handle returned by Claim, bound to the attempt it
// created. A lease with a zero token is non-owning: it carries the
// job's current state for inspection but its holder lost the claim
// (duplicate delivery of a live job, or an already-terminal job) and
// any Complete/Fail it attempts will be rejected as superseded.
type Lease struct {
	// Job is a snapshot of the record at claim time.
	Job *job.Job
	// Token is the attempt count this claim created, or zero for a
	// non-owning lease. Valid tokens start at 1.
	Token int
}

// Owned reports whether this lease holds the active claim.
func (l *Lease) Owned() bool { return l.Token > 0 }

// Terminal reports whether the job was already terminal at claim time.
func (l *Lease) Terminal() bool { return l.Job.Status.Terminal() }

// Engine is the job lifecycle engine.
type Engine struct {
	store  job.Store
	queue  queue.Queue
	dlq    *dlq.Service
	ctrl   *backoff.Controller
	signer artifact.Signer
	exts   *ext.Registry
	logger *slog.Logger

	maxAttempts     int
	staleClaimAfter time.Duration
	urlTTL          time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithDLQ sets the dead-letter service terminally failed jobs are
// recorded on.
func WithDLQ(s *dlq.Service) Option {
	return func(e *Engine) { e.dlq = s }
}

// WithController sets the retry/backoff controller. Its attempt budget
// overrides WithMaxAttempts.
func WithController(c *backoff.Controller) Option {
	return func(e *Engine) {
		e.ctrl = c
		e.maxAttempts = c.MaxAttempts()
	}
}

// WithMaxAttempts sets the total claim budget per job.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		e.ctrl = backoff.NewController(backoff.DefaultStrategy(), n)
		e.maxAttempts = e.ctrl.MaxAttempts()
	}
}

// WithSigner sets the signer used to derive time-limited retrieval URLs
// for completed jobs. Without one, Status exposes the raw artifact key.
func WithSigner(s artifact.Signer) Option {
	return func(e *Engine) { e.signer = s }
}

// WithDownloadURLTTL sets the lifetime of derived retrieval URLs.
func WithDownloadURLTTL(d time.Duration) Option {
	return func(e *Engine) { e.urlTTL = d }
}

// WithStaleClaimThreshold sets how long a processing job may go without
// a record update before a redelivered claim may reclaim it.
func WithStaleClaimThreshold(d time.Duration) Option {
	return func(e *Engine) { e.staleClaimAfter = d }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(e *Engine) { e.exts = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over the given store and queue.
func New(store job.Store, q queue.Queue, opts ...Option) *Engine {
	cfg := exportq.DefaultConfig()
	e := &Engine{
		store:           store,
		queue:           q,
		ctrl:            backoff.NewController(backoff.NewExponential(cfg.RetryBaseDelay, cfg.RetryMaxDelay), cfg.MaxAttempts),
		logger:          slog.Default(),
		maxAttempts:     cfg.MaxAttempts,
		staleClaimAfter: cfg.StaleClaimThreshold,
		urlTTL:          cfg.DownloadURLTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.exts == nil {
		e.exts = ext.NewRegistry(e.logger)
	}
	return e
}

// Extensions returns the engine's hook registry.
func (e *Engine) Extensions() *ext.Registry { return e.exts }

// Submit validates the input, creates a job in queued state, enqueues
// its identifier, and returns the initial projection. No job is created
// when validation fails.
func (e *Engine) Submit(ctx context.Context, fileIDs []string) (*job.View, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: no file references", exportq.ErrInvalidInput)
	}
	for i, ref := range fileIDs {
		if err := job.ValidateFileRef(ref); err != nil {
			return nil, fmt.Errorf("%w: reference %d: %v", exportq.ErrInvalidInput, i, err)
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		Status:      job.StatusQueued,
		FileIDs:     append([]string(nil), fileIDs...),
		MaxAttempts: e.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("engine: create job: %w", err)
	}
	if err := e.queue.Enqueue(ctx, j.ID, 0); err != nil {
		// The record exists but is undeliverable; surface the fault to
		// the submitter rather than leave a silently stuck job.
		e.logger.Error("enqueue after create failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("engine: enqueue job: %w", err)
	}

	e.exts.EmitJobQueued(ctx, j)
	return job.NewView(j, ""), nil
}

// Claim takes ownership of a queued job on behalf of a worker,
// incrementing its attempt count and moving it to processing. Claims on
// terminal jobs are idempotent no-ops returning the current state.
// Claims on a live processing job return a non-owning lease whose
// subsequent writes are rejected. Claims on a processing job whose
// record has gone stale (the visibility window lapsed, so the queue
// redelivered it) reclaim the job and supersede the previous worker.
func (e *Engine) Claim(ctx context.Context, jobID id.JobID) (*Lease, error) {
	for range casAttempts {
		j, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if j.Status.Terminal() {
			return &Lease{Job: j}, nil
		}

		if j.Status == job.StatusProcessing {
			if time.Since(j.UpdatedAt) < e.staleClaimAfter {
				// Duplicate delivery of a live job: the holder of this
				// lease lost the race.
				return &Lease{Job: j}, nil
			}
			// Abandoned claim: fall through and reclaim.
		}

		// A queued job that already consumed its budget can only have
		// got here through crash-redelivery loops; force it terminal
		// rather than grant an attempt past the ceiling.
		if j.AttemptCount >= j.MaxAttempts {
			failed, ferr := e.forceFail(ctx, j, fmt.Errorf("retry budget exhausted after %d attempts", j.AttemptCount))
			if ferr != nil {
				if errors.Is(ferr, exportq.ErrVersionConflict) {
					continue
				}
				return nil, ferr
			}
			return &Lease{Job: failed}, nil
		}

		expect := job.Version{Status: j.Status, Attempt: j.AttemptCount}
		j.Status = job.StatusProcessing
		j.AttemptCount++
		j.UpdatedAt = time.Now().UTC()

		if err := e.store.SwapJob(ctx, j, expect); err != nil {
			if errors.Is(err, exportq.ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("engine: claim job: %w", err)
		}

		e.exts.EmitJobClaimed(ctx, j)
		return &Lease{Job: j.Clone(), Token: j.AttemptCount}, nil
	}
	return nil, fmt.Errorf("engine: claim job %s: %w", jobID, exportq.ErrVersionConflict)
}

// ReportProgress records a worker-supplied progress hint. The report is
// accepted only while the supplied attempt token matches the current
// claim; a superseded worker receives ErrSuperseded, which it may log
// and must otherwise ignore. Percent regressions are silently dropped;
// progress is monotonically non-decreasing while processing.
func (e *Engine) ReportProgress(ctx context.Context, jobID id.JobID, token int, p job.Progress) error {
	for range casAttempts {
		j, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if j.Status != job.StatusProcessing || token != j.AttemptCount || token == 0 {
			return exportq.ErrSuperseded
		}

		pct := p.Percent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if pct < j.Progress && p.ETA == 0 {
			return nil // stale hint; keep the high-water mark
		}
		if pct > j.Progress {
			j.Progress = pct
		}

		expect := job.Version{Status: j.Status, Attempt: j.AttemptCount}
		now := time.Now().UTC()
		j.ETA = p.ETA
		j.ReportedAt = &now
		j.UpdatedAt = now

		if err := e.store.SwapJob(ctx, j, expect); err != nil {
			if errors.Is(err, exportq.ErrVersionConflict) {
				continue
			}
			return fmt.Errorf("engine: report progress: %w", err)
		}

		e.exts.EmitJobProgress(ctx, j, p)
		return nil
	}
	return exportq.ErrSuperseded
}

// Complete records the prepared artifact and moves the job to its
// completed terminal state. The artifact location is set exactly here
// and never again.
func (e *Engine) Complete(ctx context.Context, jobID id.JobID, token int, loc artifact.Location) error {
	for range casAttempts {
		j, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		if token != j.AttemptCount || token == 0 {
			return exportq.ErrSuperseded
		}
		if j.Status.Terminal() {
			return exportq.ErrInvalidTransition
		}

		expect := job.Version{Status: j.Status, Attempt: j.AttemptCount}
		now := time.Now().UTC()
		j.Status = job.StatusCompleted
		j.ArtifactKey = loc.Key
		j.ArtifactSize = loc.Size
		j.Progress = 100
		j.CompletedAt = &now
		j.UpdatedAt = now

		if err := e.store.SwapJob(ctx, j, expect); err != nil {
			if errors.Is(err, exportq.ErrVersionConflict) {
				continue
			}
			return fmt.Errorf("engine: complete job: %w", err)
		}

		e.exts.EmitJobCompleted(ctx, j, now.Sub(j.CreatedAt))
		return nil
	}
	return fmt.Errorf("engine: complete job %s: %w", jobID, exportq.ErrVersionConflict)
}

// Fail reports a processing failure. Retryable failures with budget
// remaining transition the job back to queued and re-enqueue it after
// the controller's backoff delay, the only backward edge, invisible to
// pollers as anything but a transient queued status. Permanent failures
// and exhausted budgets transition to failed and record the job on the
// dead letter channel. The returned decision tells the caller how the
// failure was routed.
func (e *Engine) Fail(ctx context.Context, jobID id.JobID, token int, procErr error) (backoff.Decision, error) {
	if procErr == nil {
		return backoff.Decision{}, fmt.Errorf("engine: fail job %s: nil error", jobID)
	}

	for range casAttempts {
		j, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return backoff.Decision{}, err
		}

		if token != j.AttemptCount || token == 0 {
			return backoff.Decision{}, exportq.ErrSuperseded
		}
		if j.Status.Terminal() {
			return backoff.Decision{}, exportq.ErrInvalidTransition
		}

		retryable := exportq.IsRetryable(procErr)
		decision := e.ctrl.Decide(j.AttemptCount, retryable)
		expect := job.Version{Status: j.Status, Attempt: j.AttemptCount}
		now := time.Now().UTC()

		if decision.Requeue {
			j.Status = job.StatusQueued
			j.UpdatedAt = now

			if err := e.store.SwapJob(ctx, j, expect); err != nil {
				if errors.Is(err, exportq.ErrVersionConflict) {
					continue
				}
				return backoff.Decision{}, fmt.Errorf("engine: requeue job: %w", err)
			}
			if err := e.queue.Enqueue(ctx, j.ID, decision.Delay); err != nil {
				// The record says queued; redelivery will also come from
				// the original message's visibility lapse, so log only.
				e.logger.Error("re-enqueue for retry failed",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
			}

			e.exts.EmitJobRequeued(ctx, j, decision.Delay)
			e.logger.Info("job requeued for retry",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.AttemptCount),
				slog.Int("max_attempts", j.MaxAttempts),
				slog.Duration("delay", decision.Delay),
			)
			return decision, nil
		}

		j.Status = job.StatusFailed
		j.ErrorMessage = procErr.Error()
		j.ErrorRetryable = retryable
		j.DeadLettered = true
		j.CompletedAt = &now
		j.UpdatedAt = now

		if err := e.store.SwapJob(ctx, j, expect); err != nil {
			if errors.Is(err, exportq.ErrVersionConflict) {
				continue
			}
			return backoff.Decision{}, fmt.Errorf("engine: fail job: %w", err)
		}

		e.deadLetter(ctx, j, procErr)
		return decision, nil
	}
	return backoff.Decision{}, fmt.Errorf("engine: fail job %s: %w", jobID, exportq.ErrVersionConflict)
}

// ForceFail is the administrative queued→failed edge: it terminally
// fails a job that is not currently claimed, recording the given
// reason. Processing and terminal jobs are rejected.
func (e *Engine) ForceFail(ctx context.Context, jobID id.JobID, reason string) error {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusQueued {
		return exportq.ErrInvalidTransition
	}
	_, err = e.forceFail(ctx, j, errors.New(reason))
	return err
}

// forceFail terminally fails j from its current non-terminal state and
// dead-letters it. Callers handle ErrVersionConflict.
func (e *Engine) forceFail(ctx context.Context, j *job.Job, cause error) (*job.Job, error) {
	expect := job.Version{Status: j.Status, Attempt: j.AttemptCount}
	now := time.Now().UTC()
	j.Status = job.StatusFailed
	j.ErrorMessage = cause.Error()
	j.ErrorRetryable = false
	j.DeadLettered = true
	j.CompletedAt = &now
	j.UpdatedAt = now

	if err := e.store.SwapJob(ctx, j, expect); err != nil {
		return nil, err
	}
	e.deadLetter(ctx, j, cause)
	return j, nil
}

// deadLetter records a terminally failed job on the dead letter channel
// and emits the failure hooks. Only the writer that won the terminal
// swap reaches here, so the channel sees each job at most once.
func (e *Engine) deadLetter(ctx context.Context, j *job.Job, cause error) {
	if e.dlq != nil {
		if err := e.dlq.Push(ctx, j, cause); err != nil {
			e.logger.Error("dead letter push failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	e.exts.EmitJobFailed(ctx, j, cause)
	e.exts.EmitJobDeadLettered(ctx, j, cause)

	e.logger.Warn("job failed terminally",
		slog.String("job_id", j.ID.String()),
		slog.Int("attempt", j.AttemptCount),
		slog.String("error", cause.Error()),
	)
}

// Status returns the read-only projection of a job for external
// polling. It reads the latest committed record and is never affected
// by in-flight processing. Unknown ids yield ErrJobNotFound with no
// partial record leaked.
func (e *Engine) Status(ctx context.Context, jobID id.JobID) (*job.View, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var url string
	if j.Status == job.StatusCompleted {
		url = j.ArtifactKey
		if e.signer != nil {
			signed, serr := e.signer.SignURL(j.ArtifactKey, e.urlTTL)
			if serr != nil {
				return nil, fmt.Errorf("engine: sign download url: %w", serr)
			}
			url = signed
		}
	}

	return job.NewView(j, url), nil
}
