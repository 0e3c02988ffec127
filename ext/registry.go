package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/veldtlabs/exportq/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobQueuedEntry struct {
	name string
	hook JobQueued
}

type jobClaimedEntry struct {
	name string
	hook JobClaimed
}

type jobProgressEntry struct {
	name string
	hook JobProgress
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobRequeuedEntry struct {
	name string
	hook JobRequeued
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobDeadLetteredEntry struct {
	name string
	hook JobDeadLettered
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
// Hook errors are logged, never propagated: lifecycle progress must not
// depend on observer health.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobQueued       []jobQueuedEntry
	jobClaimed      []jobClaimedEntry
	jobProgress     []jobProgressEntry
	jobCompleted    []jobCompletedEntry
	jobRequeued     []jobRequeuedEntry
	jobFailed       []jobFailedEntry
	jobDeadLettered []jobDeadLetteredEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an empty extension registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and caches each hook it implements.
// Not safe for concurrent use with emits; register everything before
// starting workers.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	name := e.Name()
	if h, ok := e.(JobQueued); ok {
		r.jobQueued = append(r.jobQueued, jobQueuedEntry{name: name, hook: h})
	}
	if h, ok := e.(JobClaimed); ok {
		r.jobClaimed = append(r.jobClaimed, jobClaimedEntry{name: name, hook: h})
	}
	if h, ok := e.(JobProgress); ok {
		r.jobProgress = append(r.jobProgress, jobProgressEntry{name: name, hook: h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name: name, hook: h})
	}
	if h, ok := e.(JobRequeued); ok {
		r.jobRequeued = append(r.jobRequeued, jobRequeuedEntry{name: name, hook: h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name: name, hook: h})
	}
	if h, ok := e.(JobDeadLettered); ok {
		r.jobDeadLettered = append(r.jobDeadLettered, jobDeadLetteredEntry{name: name, hook: h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name: name, hook: h})
	}
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []Extension {
	return r.extensions
}

func (r *Registry) hookErr(name, event string, err error) {
	if err != nil {
		r.logger.Warn("extension hook error",
			slog.String("extension", name),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// EmitJobQueued notifies JobQueued hooks.
func (r *Registry) EmitJobQueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobQueued {
		r.hookErr(e.name, "job_queued", e.hook.OnJobQueued(ctx, j))
	}
}

// EmitJobClaimed notifies JobClaimed hooks.
func (r *Registry) EmitJobClaimed(ctx context.Context, j *job.Job) {
	for _, e := range r.jobClaimed {
		r.hookErr(e.name, "job_claimed", e.hook.OnJobClaimed(ctx, j))
	}
}

// EmitJobProgress notifies JobProgress hooks.
func (r *Registry) EmitJobProgress(ctx context.Context, j *job.Job, p job.Progress) {
	for _, e := range r.jobProgress {
		r.hookErr(e.name, "job_progress", e.hook.OnJobProgress(ctx, j, p))
	}
}

// EmitJobCompleted notifies JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.hookErr(e.name, "job_completed", e.hook.OnJobCompleted(ctx, j, elapsed))
	}
}

// EmitJobRequeued notifies JobRequeued hooks.
func (r *Registry) EmitJobRequeued(ctx context.Context, j *job.Job, delay time.Duration) {
	for _, e := range r.jobRequeued {
		r.hookErr(e.name, "job_requeued", e.hook.OnJobRequeued(ctx, j, delay))
	}
}

// EmitJobFailed notifies JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, err error) {
	for _, e := range r.jobFailed {
		r.hookErr(e.name, "job_failed", e.hook.OnJobFailed(ctx, j, err))
	}
}

// EmitJobDeadLettered notifies JobDeadLettered hooks.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.Job, err error) {
	for _, e := range r.jobDeadLettered {
		r.hookErr(e.name, "job_dead_lettered", e.hook.OnJobDeadLettered(ctx, j, err))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.hookErr(e.name, "shutdown", e.hook.OnShutdown(ctx))
	}
}
