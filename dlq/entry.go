// Package dlq is the operator-facing dead letter channel. Jobs that
// exhaust their retry budget or fail permanently are recorded here for
// inspection; the channel is terminal and never feeds back into the
// client-facing status API.
package dlq

import (
	"time"

	"github.com/veldtlabs/exportq/id"
)

// Entry records one dead-lettered job.
type Entry struct {
	ID           id.DLQID  `json:"id"`
	JobID        id.JobID  `json:"job_id"`
	FileIDs      []string  `json:"file_ids"`
	Error        string    `json:"error"`
	Retryable    bool      `json:"retryable"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	FailedAt     time.Time `json:"failed_at"`
	CreatedAt    time.Time `json:"created_at"`
}
