package exportq

import "time"

// Config holds tunables shared by the engine and worker pool.
type Config struct {
	// MaxAttempts is the total number of claims a job may consume before
	// it is terminally failed and dead-lettered. The default of 4 allows
	// three retries beyond the first attempt.
	MaxAttempts int

	// Concurrency is the number of jobs a worker pool processes at once.
	Concurrency int

	// PollInterval is how long an idle worker waits between dequeue
	// attempts when the queue is empty.
	PollInterval time.Duration

	// VisibilityTimeout is the queue-side window after which an
	// unacknowledged delivery becomes redeliverable. It must exceed the
	// HeartbeatInterval; processing longer than the window relies on the
	// heartbeat extending visibility.
	VisibilityTimeout time.Duration

	// HeartbeatInterval is how often workers extend visibility for
	// in-flight deliveries.
	HeartbeatInterval time.Duration

	// StaleClaimThreshold is how long a processing job may go without a
	// record update before a redelivered claim may reclaim it. It should
	// be at least the VisibilityTimeout.
	StaleClaimThreshold time.Duration

	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff
	// applied between retry attempts.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// DownloadURLTTL is the lifetime of retrieval URLs derived for
	// completed jobs.
	DownloadURLTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful worker
	// shutdown before in-flight processing is cancelled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         4,
		Concurrency:         10,
		PollInterval:        1 * time.Second,
		VisibilityTimeout:   3 * time.Minute,
		HeartbeatInterval:   30 * time.Second,
		StaleClaimThreshold: 3 * time.Minute,
		RetryBaseDelay:      5 * time.Second,
		RetryMaxDelay:       2 * time.Minute,
		DownloadURLTTL:      15 * time.Minute,
		ShutdownTimeout:     30 * time.Second,
	}
}
