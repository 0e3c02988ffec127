package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/ext"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/queue"
)

// Pool manages a set of concurrent worker goroutines that dequeue
// deliveries and execute them through the Executor. While a delivery is
// being worked, the pool heartbeats its visibility so long jobs are not
// redelivered mid-flight.
type Pool struct {
	queue      queue.Queue
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger
	workerID   id.WorkerID

	concurrency       int
	heartbeatInterval time.Duration
	visibilityExtend  time.Duration
	limiter           *rate.Limiter

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	// active maps ack tokens of in-flight deliveries to the cancel func
	// of their processing context.
	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithHeartbeatInterval sets how often the pool extends visibility for
// in-flight deliveries. A zero value disables the heartbeat.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithVisibilityExtension sets how far each heartbeat pushes the
// redelivery deadline out.
func WithVisibilityExtension(d time.Duration) PoolOption {
	return func(p *Pool) { p.visibilityExtend = d }
}

// WithRateLimit caps the pool's dequeue rate. Useful when the file
// source or object store throttles aggressively.
func WithRateLimit(limit rate.Limit, burst int) PoolOption {
	return func(p *Pool) { p.limiter = rate.NewLimiter(limit, burst) }
}

// WithExtensions sets the lifecycle hook registry notified on shutdown.
func WithExtensions(r *ext.Registry) PoolOption {
	return func(p *Pool) { p.extensions = r }
}

// NewPool creates a worker pool.
func NewPool(q queue.Queue, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := exportq.DefaultConfig()
	p := &Pool{
		queue:             q,
		executor:          executor,
		logger:            logger,
		workerID:          id.NewWorkerID(),
		concurrency:       cfg.Concurrency,
		heartbeatInterval: cfg.HeartbeatInterval,
		visibilityExtend:  cfg.VisibilityTimeout,
		stopCh:            make(chan struct{}),
		active:            make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop(runCtx)
	}

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop(runCtx)
	}

	return nil
}

// Stop signals all workers to stop and waits for in-flight deliveries
// to settle. If the context has a deadline, active processing is
// cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	// Stop dequeue loops from picking up new work.
	close(p.stopCh)
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active deliveries")
		p.cancelActive()
		p.wg.Wait()
	}

	if p.extensions != nil {
		p.extensions.EmitShutdown(context.Background())
	}
	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop(runCtx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(runCtx); err != nil {
				return
			}
		}

		d, err := p.queue.Dequeue(runCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, exportq.ErrQueueClosed) {
				return
			}
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			select {
			case <-time.After(time.Second):
			case <-p.stopCh:
				return
			}
			continue
		}

		// Processing gets its own context so shutdown can cancel it
		// independently of the dequeue loop.
		procCtx, cancel := context.WithCancel(context.Background())
		p.track(d.AckToken, cancel)

		if execErr := p.executor.Execute(procCtx, d); execErr != nil {
			p.logger.Debug("delivery execution failed",
				slog.String("job_id", d.JobID.String()),
				slog.Int("receive_count", d.ReceiveCount),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrack(d.AckToken)
		cancel()
	}
}

// heartbeatLoop periodically extends visibility for all in-flight
// deliveries.
func (p *Pool) heartbeatLoop(runCtx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.extendVisibility(runCtx)
		}
	}
}

func (p *Pool) extendVisibility(ctx context.Context) {
	p.activeMu.Lock()
	tokens := make([]string, 0, len(p.active))
	for token := range p.active {
		tokens = append(tokens, token)
	}
	p.activeMu.Unlock()

	for _, token := range tokens {
		if err := p.queue.ExtendVisibility(ctx, token, p.visibilityExtend); err != nil {
			// The delivery may have been settled between snapshot and
			// heartbeat; stale tokens are expected here.
			if errors.Is(err, exportq.ErrUnknownDelivery) {
				continue
			}
			p.logger.Warn("visibility heartbeat failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Pool) track(token string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[token] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(token string) {
	p.activeMu.Lock()
	delete(p.active, token)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for token, cancel := range p.active {
		p.logger.Warn("cancelling active delivery", slog.String("ack_token", token))
		cancel()
	}
}
