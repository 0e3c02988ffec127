// Package redis provides a Redis-backed Queue implementation for
// multi-process deployments. Messages live in a ready Sorted Set scored
// by deliverable-at time, move to an in-flight Sorted Set scored by
// visibility deadline on dequeue, and land on a dead List when
// dead-lettered. Envelopes are msgpack-encoded.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/queue"
)

// Ensure Queue implements the contract at compile time.
var _ queue.Queue = (*Queue)(nil)

// envelope is the msgpack-encoded message body stored per message.
// Token always holds the ack token of the most recent delivery, so a
// superseded holder's token fails verification after redelivery.
type envelope struct {
	JobID        string `msgpack:"job_id"`
	ReceiveCount int    `msgpack:"receive_count"`
	Token        string `msgpack:"token,omitempty"`
	EnqueuedAt   int64  `msgpack:"enqueued_at"`
	DeadAt       int64  `msgpack:"dead_at,omitempty"`
}

// claimScript atomically pops the earliest due member of the ready set
// and registers it in-flight with the given visibility deadline.
// KEYS[1]=ready KEYS[2]=inflight ARGV[1]=now_ms ARGV[2]=deadline_ms
var claimScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
  return false
end
redis.call('ZREM', KEYS[1], due[1])
redis.call('ZADD', KEYS[2], ARGV[2], due[1])
return due[1]
`)

// promoteScript moves in-flight members whose visibility deadline has
// passed back onto the ready set.
// KEYS[1]=inflight KEYS[2]=ready ARGV[1]=now_ms
var promoteScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, m in ipairs(expired) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('ZADD', KEYS[2], ARGV[1], m)
end
return #expired
`)

// Queue is the Redis work queue.
type Queue struct {
	client       goredis.UniversalClient
	visibility   time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithVisibilityTimeout sets the window after which an unacknowledged
// delivery becomes redeliverable.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithPollInterval sets how often Dequeue polls when the queue is empty.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// WithLogger sets the logger for the queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New creates a Queue on an existing Redis client. The caller owns the
// client lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Queue {
	q := &Queue{
		client:       client,
		visibility:   3 * time.Minute,
		pollInterval: 500 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue makes the job id deliverable after delay.
func (q *Queue) Enqueue(ctx context.Context, jobID id.JobID, delay time.Duration) error {
	msgID := id.NewDeliveryID().String()
	now := time.Now().UTC()

	body, err := msgpack.Marshal(&envelope{
		JobID:      jobID.String(),
		EnqueuedAt: now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("exportq/redis: encode envelope: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, msgKey(msgID), body, 0)
	pipe.ZAdd(ctx, readyKey, goredis.Z{
		Score:  float64(now.Add(delay).UnixMilli()),
		Member: msgID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exportq/redis: enqueue: %w", err)
	}
	return nil
}

// Dequeue polls until a message is deliverable or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		d, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) tryClaim(ctx context.Context) (*queue.Delivery, error) {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	// Return lapsed in-flight messages to circulation first.
	if err := promoteScript.Run(ctx, q.client, []string{inflightKey, readyKey}, nowMs).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("exportq/redis: promote expired: %w", err)
	}

	deadline := now.Add(q.visibility).UnixMilli()
	res, err := claimScript.Run(ctx, q.client, []string{readyKey, inflightKey}, nowMs, deadline).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil // nothing due
		}
		return nil, fmt.Errorf("exportq/redis: claim: %w", err)
	}

	msgID, ok := res.(string)
	if !ok || msgID == "" {
		return nil, nil
	}

	env, err := q.getEnvelope(ctx, msgID)
	if err != nil {
		return nil, err
	}

	// Bind a fresh ack token to this delivery.
	token := id.NewDeliveryID().String()
	env.ReceiveCount++
	env.Token = token

	if err := q.putEnvelope(ctx, msgID, env); err != nil {
		return nil, err
	}
	if err := q.client.Set(ctx, ackKey(token), msgID, 0).Err(); err != nil {
		return nil, fmt.Errorf("exportq/redis: bind ack token: %w", err)
	}

	jobID, err := id.ParseJobID(env.JobID)
	if err != nil {
		return nil, fmt.Errorf("exportq/redis: corrupt envelope %s: %w", msgID, err)
	}

	return &queue.Delivery{
		JobID:        jobID,
		AckToken:     token,
		ReceiveCount: env.ReceiveCount,
	}, nil
}

// Ack permanently removes the delivered message.
func (q *Queue) Ack(ctx context.Context, ackToken string) error {
	msgID, _, err := q.resolve(ctx, ackToken)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey, msgID)
	pipe.Del(ctx, msgKey(msgID), ackKey(ackToken))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exportq/redis: ack: %w", err)
	}
	return nil
}

// Nack returns the message to the queue after delay.
func (q *Queue) Nack(ctx context.Context, ackToken string, delay time.Duration) error {
	msgID, env, err := q.resolve(ctx, ackToken)
	if err != nil {
		return err
	}

	// The token is consumed; the next delivery binds a new one.
	env.Token = ""
	if err := q.putEnvelope(ctx, msgID, env); err != nil {
		return err
	}

	readyAt := time.Now().UTC().Add(delay).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey, msgID)
	pipe.ZAdd(ctx, readyKey, goredis.Z{Score: float64(readyAt), Member: msgID})
	pipe.Del(ctx, ackKey(ackToken))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exportq/redis: nack: %w", err)
	}
	return nil
}

// ExtendVisibility pushes the redelivery deadline out by d from now.
func (q *Queue) ExtendVisibility(ctx context.Context, ackToken string, d time.Duration) error {
	msgID, _, err := q.resolve(ctx, ackToken)
	if err != nil {
		return err
	}

	// Only extend while still in flight; a promoted message belongs to
	// its next claimant.
	if err := q.client.ZScore(ctx, inflightKey, msgID).Err(); err != nil {
		if errors.Is(err, goredis.Nil) {
			return exportq.ErrUnknownDelivery
		}
		return fmt.Errorf("exportq/redis: extend visibility: %w", err)
	}

	deadline := time.Now().UTC().Add(d).UnixMilli()
	if err := q.client.ZAdd(ctx, inflightKey, goredis.Z{Score: float64(deadline), Member: msgID}).Err(); err != nil {
		return fmt.Errorf("exportq/redis: extend visibility: %w", err)
	}
	return nil
}

// DeadLetter removes the message from circulation and records it on the
// dead list.
func (q *Queue) DeadLetter(ctx context.Context, ackToken string) error {
	msgID, env, err := q.resolve(ctx, ackToken)
	if err != nil {
		return err
	}

	env.DeadAt = time.Now().UTC().UnixMilli()
	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("exportq/redis: encode dead envelope: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, deadKey, body)
	pipe.ZRem(ctx, inflightKey, msgID)
	pipe.Del(ctx, msgKey(msgID), ackKey(ackToken))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exportq/redis: dead letter: %w", err)
	}
	return nil
}

// DeadLetters returns up to limit dead-lettered job ids, newest first.
// Zero means no limit.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]id.JobID, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	bodies, err := q.client.LRange(ctx, deadKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("exportq/redis: list dead letters: %w", err)
	}

	ids := make([]id.JobID, 0, len(bodies))
	for _, body := range bodies {
		var env envelope
		if err := msgpack.Unmarshal([]byte(body), &env); err != nil {
			q.logger.Warn("skipping corrupt dead-letter envelope", slog.String("error", err.Error()))
			continue
		}
		jobID, err := id.ParseJobID(env.JobID)
		if err != nil {
			continue
		}
		ids = append(ids, jobID)
	}
	return ids, nil
}

// resolve maps an ack token to its message, verifying the token is
// still the message's current delivery.
func (q *Queue) resolve(ctx context.Context, ackToken string) (string, *envelope, error) {
	msgID, err := q.client.Get(ctx, ackKey(ackToken)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil, exportq.ErrUnknownDelivery
		}
		return "", nil, fmt.Errorf("exportq/redis: resolve token: %w", err)
	}

	env, err := q.getEnvelope(ctx, msgID)
	if err != nil {
		return "", nil, err
	}
	if env.Token != ackToken {
		// The message was redelivered; this holder is superseded.
		_ = q.client.Del(ctx, ackKey(ackToken)).Err() //nolint:errcheck // best-effort cleanup
		return "", nil, exportq.ErrUnknownDelivery
	}
	return msgID, env, nil
}

func (q *Queue) getEnvelope(ctx context.Context, msgID string) (*envelope, error) {
	body, err := q.client.Get(ctx, msgKey(msgID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, exportq.ErrUnknownDelivery
		}
		return nil, fmt.Errorf("exportq/redis: get envelope: %w", err)
	}
	var env envelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("exportq/redis: decode envelope: %w", err)
	}
	return &env, nil
}

func (q *Queue) putEnvelope(ctx context.Context, msgID string, env *envelope) error {
	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("exportq/redis: encode envelope: %w", err)
	}
	if err := q.client.Set(ctx, msgKey(msgID), body, 0).Err(); err != nil {
		return fmt.Errorf("exportq/redis: put envelope: %w", err)
	}
	return nil
}
