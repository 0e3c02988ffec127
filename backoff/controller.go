package backoff

import "time"

// Decision is the controller's verdict on a single reported failure.
type Decision struct {
	// Requeue is true when the job should transition back to queued and
	// be redelivered after Delay.
	Requeue bool
	// Delay is the backoff before redelivery. Zero unless Requeue.
	Delay time.Duration
	// Exhausted is true when the retry budget ran out (as opposed to a
	// permanent classification ending retries early).
	Exhausted bool
}

// Controller decides, on each worker-reported failure, whether the job
// is retried with a delay or routed to the dead letter sink. It does
// not inspect error content; the retryable classification is supplied
// by the caller.
type Controller struct {
	strategy    Strategy
	maxAttempts int
}

// NewController creates a Controller. maxAttempts is the total claim
// budget including the first attempt; values below 1 are treated as 1.
func NewController(strategy Strategy, maxAttempts int) *Controller {
	if strategy == nil {
		strategy = DefaultStrategy()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Controller{strategy: strategy, maxAttempts: maxAttempts}
}

// MaxAttempts returns the configured total attempt budget.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// Decide returns the verdict for a failure reported on the given
// attempt (1-indexed). A non-retryable failure or an exhausted budget
// yields a dead-letter decision; otherwise the job is requeued with
// delay strategy.Delay(attempt).
func (c *Controller) Decide(attempt int, retryable bool) Decision {
	if !retryable {
		return Decision{}
	}
	if attempt >= c.maxAttempts {
		return Decision{Exhausted: true}
	}
	return Decision{Requeue: true, Delay: c.strategy.Delay(attempt)}
}
