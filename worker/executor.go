package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/artifact"
	"github.com/veldtlabs/exportq/engine"
	"github.com/veldtlabs/exportq/job"
	"github.com/veldtlabs/exportq/middleware"
	"github.com/veldtlabs/exportq/queue"
)

// nackDelay is applied when a delivery cannot even be claimed (store
// unreachable, transient fault before processing started).
const nackDelay = 5 * time.Second

// Executor drives one queue delivery through the full lifecycle: claim
// the job, run the processor through middleware, report the outcome to
// the engine, and settle the delivery with exactly one queue operation
// (ack, nack, or dead letter). Safe for concurrent use; the Pool shares
// one Executor across its worker goroutines.
type Executor struct {
	engine    *engine.Engine
	queue     queue.Queue
	processor Processor
	mw        middleware.Middleware
	logger    *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	eng *engine.Engine,
	q queue.Queue,
	processor Processor,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		engine:    eng,
		queue:     q,
		processor: processor,
		mw:        middleware.Chain(mws...),
		logger:    logger,
	}
}

// Execute handles a single delivery. The returned error reports the
// processing outcome for logging; the delivery itself is always settled
// before Execute returns.
func (e *Executor) Execute(ctx context.Context, d *queue.Delivery) error {
	lease, err := e.engine.Claim(ctx, d.JobID)
	if err != nil {
		// Could not even read or claim the record. Put the delivery back
		// and let a later attempt sort it out.
		if nackErr := e.queue.Nack(ctx, d.AckToken, nackDelay); nackErr != nil {
			e.logger.Error("nack after claim error failed",
				slog.String("job_id", d.JobID.String()),
				slog.String("error", nackErr.Error()),
			)
		}
		return err
	}

	if !lease.Owned() {
		// Duplicate delivery: the job is terminal, or a live claim is
		// already being worked. Either way this delivery is spent.
		e.ack(ctx, d)
		return nil
	}

	loc, procErr := e.process(ctx, lease)
	if procErr == nil {
		return e.handleSuccess(ctx, d, lease, loc)
	}
	return e.handleFailure(ctx, d, lease, procErr)
}

// process runs the processor through the middleware chain, wiring
// progress reports back to the engine under this attempt's token.
func (e *Executor) process(ctx context.Context, lease *engine.Lease) (artifact.Location, error) {
	j := lease.Job

	report := func(p job.Progress) {
		if err := e.engine.ReportProgress(ctx, j.ID, lease.Token, p); err != nil && !errors.Is(err, exportq.ErrSuperseded) {
			e.logger.Warn("progress report failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	var loc artifact.Location
	terminal := func(ctx context.Context) error {
		result, err := e.processor.Process(ctx, j.FileIDs, report)
		if err != nil {
			return err
		}
		loc = result
		return nil
	}

	err := e.mw(ctx, j, terminal)
	return loc, err
}

// handleSuccess records the artifact and acks the delivery. A
// superseded completion means another worker took over; the delivery is
// still spent.
func (e *Executor) handleSuccess(ctx context.Context, d *queue.Delivery, lease *engine.Lease, loc artifact.Location) error {
	err := e.engine.Complete(ctx, d.JobID, lease.Token, loc)
	switch {
	case err == nil:
		e.ack(ctx, d)
		return nil
	case errors.Is(err, exportq.ErrSuperseded), errors.Is(err, exportq.ErrInvalidTransition):
		e.logger.Info("completion superseded, discarding result",
			slog.String("job_id", d.JobID.String()),
			slog.Int("attempt", lease.Token),
		)
		e.ack(ctx, d)
		return nil
	default:
		// The record could not be updated; redeliver and retry.
		if nackErr := e.queue.Nack(ctx, d.AckToken, nackDelay); nackErr != nil {
			e.logger.Error("nack after completion error failed",
				slog.String("job_id", d.JobID.String()),
				slog.String("error", nackErr.Error()),
			)
		}
		return err
	}
}

// handleFailure reports the failure to the engine and settles the
// delivery per the retry decision: ack on requeue (the engine enqueued
// a fresh delayed message), dead letter on a terminal outcome.
func (e *Executor) handleFailure(ctx context.Context, d *queue.Delivery, lease *engine.Lease, procErr error) error {
	decision, err := e.engine.Fail(ctx, d.JobID, lease.Token, procErr)
	switch {
	case err == nil:
	case errors.Is(err, exportq.ErrSuperseded), errors.Is(err, exportq.ErrInvalidTransition):
		e.ack(ctx, d)
		return procErr
	default:
		if nackErr := e.queue.Nack(ctx, d.AckToken, nackDelay); nackErr != nil {
			e.logger.Error("nack after fail error failed",
				slog.String("job_id", d.JobID.String()),
				slog.String("error", nackErr.Error()),
			)
		}
		return err
	}

	if decision.Requeue {
		e.ack(ctx, d)
		return procErr
	}

	if dlErr := e.queue.DeadLetter(ctx, d.AckToken); dlErr != nil {
		e.logger.Error("dead letter of delivery failed",
			slog.String("job_id", d.JobID.String()),
			slog.String("error", dlErr.Error()),
		)
	}
	return procErr
}

func (e *Executor) ack(ctx context.Context, d *queue.Delivery) {
	if err := e.queue.Ack(ctx, d.AckToken); err != nil {
		e.logger.Warn("ack failed",
			slog.String("job_id", d.JobID.String()),
			slog.String("error", err.Error()),
		)
	}
}
