// Package worker provides the processing side of exportq: a Processor
// that turns file references into a stored artifact, an Executor that
// drives one delivery through claim, middleware, and exactly one
// outcome, and a Pool that manages concurrent dequeue goroutines.
package worker

import (
	"context"

	"github.com/veldtlabs/exportq/artifact"
	"github.com/veldtlabs/exportq/job"
)

// Processor prepares the artifact for one job: fetch the referenced
// files, bundle them, store the result, and return its location.
//
// report publishes a progress hint to polling clients; implementations
// call it at whatever granularity is natural and may skip it entirely.
// Reports from superseded attempts are discarded upstream, so report is
// always safe to call.
//
// Returned errors decide routing: wrap with exportq.Permanent to skip
// retries, anything else is retried within the job's attempt budget.
type Processor interface {
	Process(ctx context.Context, files []string, report func(job.Progress)) (artifact.Location, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, files []string, report func(job.Progress)) (artifact.Location, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, files []string, report func(job.Progress)) (artifact.Location, error) {
	return f(ctx, files, report)
}
