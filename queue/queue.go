// Package queue defines the work queue contract the lifecycle engine
// and worker pool consume. The queue carries job identifiers only (the
// job record store remains the single source of truth) and provides
// at-least-once delivery with acknowledgment, visibility timeouts, and
// dead-letter routing. Implementations live in subpackages.
package queue

import (
	"context"
	"time"

	"github.com/veldtlabs/exportq/id"
)

// Delivery is one dequeued message: a job identifier plus the
// acknowledgment token bound to this delivery. The token, not the job
// id, addresses Ack/Nack/ExtendVisibility/DeadLetter, so a redelivered
// message cannot be acknowledged by a superseded holder.
type Delivery struct {
	JobID    id.JobID
	AckToken string

	// ReceiveCount is how many times this message has been delivered,
	// including this delivery.
	ReceiveCount int
}

// Queue is the narrow interface behind which the queue implementation
// is injected. Delivery is at-least-once: consumers must tolerate
// duplicates, which the engine absorbs via attempt-token guards.
type Queue interface {
	// Enqueue makes the job id deliverable after the given delay.
	Enqueue(ctx context.Context, jobID id.JobID, delay time.Duration) error

	// Dequeue blocks until a message is deliverable or ctx is done. The
	// returned delivery stays invisible to other consumers for the
	// queue's visibility timeout unless extended.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Ack permanently removes the delivered message.
	Ack(ctx context.Context, ackToken string) error

	// Nack returns the message to the queue, deliverable again after
	// delay.
	Nack(ctx context.Context, ackToken string, delay time.Duration) error

	// ExtendVisibility pushes the delivery's redelivery deadline out by
	// d from now. Workers heartbeat this while processing runs long.
	ExtendVisibility(ctx context.Context, ackToken string, d time.Duration) error

	// DeadLetter removes the message from circulation and records it on
	// the queue's dead list for operator inspection.
	DeadLetter(ctx context.Context, ackToken string) error
}
