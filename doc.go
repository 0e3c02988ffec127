// Package exportq provides a durable, pollable job lifecycle engine for
// long-running file-preparation work. It converts a variable-duration
// export task (tens of seconds to minutes) into a unit of work that a
// synchronous request boundary can submit in well under a second and
// then observe by polling, instead of holding a connection open for the
// duration of processing.
//
// exportq is designed as a library, not a service. Import it, configure
// a store and a queue, register a Processor, and run a worker pool.
//
// # Quick Start
//
//	eng := engine.New(store, q,
//	    engine.WithSigner(signer),
//	    engine.WithMaxAttempts(4),
//	)
//	view, err := eng.Submit(ctx, []string{"file_a", "file_b"})
//
// # Architecture
//
// The lifecycle engine owns the job state machine
// (queued → processing → completed|failed) and applies every transition
// as a compare-and-swap on (status, attemptCount) at the storage
// boundary. The work queue is an injected collaborator behind a narrow
// interface with at-least-once delivery; duplicate deliveries are
// absorbed by attempt-token guards rather than locks. Workers drive
// jobs through an opaque Processor capability and guarantee exactly one
// outcome call per claim.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package exportq
