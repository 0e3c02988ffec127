// Package memory provides a fully in-memory Queue implementation with
// delayed delivery, visibility-timeout redelivery, and a dead list.
// Safe for concurrent use. Intended for unit testing, development, and
// single-process deployments.
package memory

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/queue"
)

// Ensure Queue implements the contract at compile time.
var _ queue.Queue = (*Queue)(nil)

// DeadMessage is an entry on the dead list.
type DeadMessage struct {
	JobID        id.JobID
	ReceiveCount int
	DeadAt       time.Time
}

type message struct {
	jobID        id.JobID
	readyAt      time.Time
	receiveCount int
	index        int
}

// readyHeap is a min-heap ordered by readyAt, ties broken by insertion
// order via heap stability not being required (FIFO within a tick is
// not part of the contract).
type readyHeap []*message

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, k int) bool  { return h[i].readyAt.Before(h[k].readyAt) }
func (h readyHeap) Swap(i, k int)       { h[i], h[k] = h[k], h[i]; h[i].index = i; h[k].index = k }
func (h *readyHeap) Push(x any)         { m := x.(*message); m.index = len(*h); *h = append(*h, m) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return m
}

type inflightEntry struct {
	msg      *message
	deadline time.Time
}

// Queue is the in-memory work queue.
type Queue struct {
	mu       sync.Mutex
	ready    readyHeap
	inflight map[string]*inflightEntry
	dead     []DeadMessage
	closed   bool

	visibility time.Duration
	notify     chan struct{}
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithVisibilityTimeout sets the window after which an unacknowledged
// delivery becomes redeliverable.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// New creates an empty in-memory queue with a 3 minute visibility
// timeout by default.
func New(opts ...Option) *Queue {
	q := &Queue{
		inflight:   make(map[string]*inflightEntry),
		visibility: 3 * time.Minute,
		notify:     make(chan struct{}, 1),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue makes the job id deliverable after delay.
func (q *Queue) Enqueue(_ context.Context, jobID id.JobID, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return exportq.ErrQueueClosed
	}

	heap.Push(&q.ready, &message{jobID: jobID, readyAt: q.now().Add(delay)})
	q.wake()
	return nil
}

// Dequeue blocks until a message is deliverable or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, exportq.ErrQueueClosed
		}

		now := q.now()
		q.redeliverExpiredLocked(now)

		if len(q.ready) > 0 && !q.ready[0].readyAt.After(now) {
			m := heap.Pop(&q.ready).(*message)
			m.receiveCount++
			token := id.NewDeliveryID().String()
			q.inflight[token] = &inflightEntry{msg: m, deadline: now.Add(q.visibility)}
			q.mu.Unlock()

			return &queue.Delivery{
				JobID:        m.jobID,
				AckToken:     token,
				ReceiveCount: m.receiveCount,
			}, nil
		}

		wait := q.nextWakeLocked(now)
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Ack permanently removes the delivered message.
func (q *Queue) Ack(_ context.Context, ackToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[ackToken]; !ok {
		return exportq.ErrUnknownDelivery
	}
	delete(q.inflight, ackToken)
	return nil
}

// Nack returns the message to the queue after delay.
func (q *Queue) Nack(_ context.Context, ackToken string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return exportq.ErrQueueClosed
	}
	e, ok := q.inflight[ackToken]
	if !ok {
		return exportq.ErrUnknownDelivery
	}
	delete(q.inflight, ackToken)

	e.msg.readyAt = q.now().Add(delay)
	heap.Push(&q.ready, e.msg)
	q.wake()
	return nil
}

// ExtendVisibility pushes the redelivery deadline out by d from now.
func (q *Queue) ExtendVisibility(_ context.Context, ackToken string, d time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[ackToken]
	if !ok {
		return exportq.ErrUnknownDelivery
	}
	e.deadline = q.now().Add(d)
	return nil
}

// DeadLetter removes the message from circulation and records it on the
// dead list.
func (q *Queue) DeadLetter(_ context.Context, ackToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[ackToken]
	if !ok {
		return exportq.ErrUnknownDelivery
	}
	delete(q.inflight, ackToken)
	q.dead = append(q.dead, DeadMessage{
		JobID:        e.msg.jobID,
		ReceiveCount: e.msg.receiveCount,
		DeadAt:       q.now().UTC(),
	})
	return nil
}

// DeadLetters returns a copy of the dead list.
func (q *Queue) DeadLetters() []DeadMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadMessage(nil), q.dead...)
}

// Depth returns the number of messages awaiting delivery.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Close rejects further operations and wakes blocked consumers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}

// redeliverExpiredLocked moves in-flight messages whose visibility
// window lapsed back onto the ready heap.
func (q *Queue) redeliverExpiredLocked(now time.Time) {
	for token, e := range q.inflight {
		if e.deadline.After(now) {
			continue
		}
		delete(q.inflight, token)
		e.msg.readyAt = now
		heap.Push(&q.ready, e.msg)
	}
}

// nextWakeLocked computes how long Dequeue may sleep before something
// could become deliverable.
func (q *Queue) nextWakeLocked(now time.Time) time.Duration {
	wait := time.Minute
	if len(q.ready) > 0 {
		if d := q.ready[0].readyAt.Sub(now); d < wait {
			wait = d
		}
	}
	for _, e := range q.inflight {
		if d := e.deadline.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
