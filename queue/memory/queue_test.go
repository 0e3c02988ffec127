package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/queue/memory"
)

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	q := memory.New()
	jobID := id.NewJobID()

	if err := q.Enqueue(context.Background(), jobID, 0); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if d.JobID.String() != jobID.String() {
		t.Errorf("delivered job = %s, want %s", d.JobID, jobID)
	}
	if d.ReceiveCount != 1 {
		t.Errorf("receive count = %d, want 1", d.ReceiveCount)
	}

	if err := q.Ack(context.Background(), d.AckToken); err != nil {
		t.Fatalf("ack error: %v", err)
	}

	// Second ack of the same token is an unknown delivery.
	if err := q.Ack(context.Background(), d.AckToken); !errors.Is(err, exportq.ErrUnknownDelivery) {
		t.Errorf("double ack error = %v, want ErrUnknownDelivery", err)
	}
}

func TestQueue_DelayedDelivery(t *testing.T) {
	q := memory.New()
	jobID := id.NewJobID()

	if err := q.Enqueue(context.Background(), jobID, 80*time.Millisecond); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	// Not deliverable yet.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("early dequeue error = %v, want deadline exceeded", err)
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after delay error: %v", err)
	}
	if d.JobID.String() != jobID.String() {
		t.Errorf("delivered job = %s, want %s", d.JobID, jobID)
	}
}

func TestQueue_VisibilityTimeoutRedelivery(t *testing.T) {
	q := memory.New(memory.WithVisibilityTimeout(50 * time.Millisecond))
	jobID := id.NewJobID()

	if err := q.Enqueue(context.Background(), jobID, 0); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("first dequeue error: %v", err)
	}

	// Never acked: after the visibility window the message comes back.
	second, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("redelivery dequeue error: %v", err)
	}
	if second.JobID.String() != jobID.String() {
		t.Errorf("redelivered job = %s, want %s", second.JobID, jobID)
	}
	if second.ReceiveCount != 2 {
		t.Errorf("receive count = %d, want 2", second.ReceiveCount)
	}
	if second.AckToken == first.AckToken {
		t.Error("redelivery reused the ack token")
	}

	// The superseded token can no longer ack.
	if err := q.Ack(context.Background(), first.AckToken); !errors.Is(err, exportq.ErrUnknownDelivery) {
		t.Errorf("stale ack error = %v, want ErrUnknownDelivery", err)
	}
}

func TestQueue_ExtendVisibility(t *testing.T) {
	q := memory.New(memory.WithVisibilityTimeout(60 * time.Millisecond))

	if err := q.Enqueue(context.Background(), id.NewJobID(), 0); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}

	// Heartbeat past the original window.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := q.ExtendVisibility(context.Background(), d.AckToken, 60*time.Millisecond); err != nil {
			t.Fatalf("extend error: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Still exclusively ours.
	if err := q.Ack(context.Background(), d.AckToken); err != nil {
		t.Fatalf("ack after heartbeats error: %v", err)
	}
}

func TestQueue_NackRedelivers(t *testing.T) {
	q := memory.New()

	if err := q.Enqueue(context.Background(), id.NewJobID(), 0); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}
	if err := q.Nack(context.Background(), d.AckToken, 20*time.Millisecond); err != nil {
		t.Fatalf("nack error: %v", err)
	}

	again, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after nack error: %v", err)
	}
	if again.ReceiveCount != 2 {
		t.Errorf("receive count = %d, want 2", again.ReceiveCount)
	}
}

func TestQueue_DeadLetter(t *testing.T) {
	q := memory.New()
	jobID := id.NewJobID()

	if err := q.Enqueue(context.Background(), jobID, 0); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue error: %v", err)
	}

	if err := q.DeadLetter(context.Background(), d.AckToken); err != nil {
		t.Fatalf("dead letter error: %v", err)
	}

	dead := q.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("dead list length = %d, want 1", len(dead))
	}
	if dead[0].JobID.String() != jobID.String() {
		t.Errorf("dead job = %s, want %s", dead[0].JobID, jobID)
	}
	if q.Depth() != 0 {
		t.Errorf("depth = %d, want 0", q.Depth())
	}
}

func TestQueue_Close(t *testing.T) {
	q := memory.New()
	if err := q.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if err := q.Enqueue(context.Background(), id.NewJobID(), 0); !errors.Is(err, exportq.ErrQueueClosed) {
		t.Errorf("enqueue after close error = %v, want ErrQueueClosed", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, exportq.ErrQueueClosed) {
		t.Errorf("dequeue after close error = %v, want ErrQueueClosed", err)
	}
}
