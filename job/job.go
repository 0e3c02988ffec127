// Package job defines the job model, its lifecycle states, the
// persistence contract, and the read-only status projection.
package job

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/veldtlabs/exportq/id"
)

// Status represents the lifecycle state of a job. Transitions are
// monotonic along queued → processing → {completed, failed}; the only
// backward edge is the explicit retry requeue (processing → queued).
type Status string

const (
	// StatusQueued means the job is waiting to be claimed by a worker.
	StatusQueued Status = "queued"
	// StatusProcessing means a worker has claimed the job and is
	// preparing the artifact.
	StatusProcessing Status = "processing"
	// StatusCompleted means the artifact is ready for retrieval.
	StatusCompleted Status = "completed"
	// StatusFailed means the job will never produce an artifact.
	StatusFailed Status = "failed"
)

// Statuses is the complete, closed set of legal status values. The
// storage boundary rejects anything outside it.
var Statuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is one of the four enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is an opaque, worker-supplied hint about how far along a
// processing job is. The engine enforces that Percent never decreases
// while a job is processing and interprets nothing else.
type Progress struct {
	// Percent is an estimate in [0,100].
	Percent int
	// ETA is an optional estimated time remaining. Zero means the worker
	// supplied no estimate.
	ETA time.Duration
}

// Job is the central entity: one unit of deferred file-preparation work
// tracked from submission to terminal outcome.
type Job struct {
	ID      id.JobID `json:"id"`
	Status  Status   `json:"status"`
	FileIDs []string `json:"file_ids"`

	// Progress fields are meaningful only while Status is processing.
	Progress   int           `json:"progress"`
	ETA        time.Duration `json:"eta,omitempty"`
	ReportedAt *time.Time    `json:"reported_at,omitempty"`

	// Artifact fields are set exactly once, on the transition into
	// completed.
	ArtifactKey  string `json:"artifact_key,omitempty"`
	ArtifactSize int64  `json:"artifact_size,omitempty"`

	// Error fields are set exactly once, on the transition into failed.
	ErrorMessage   string `json:"error_message,omitempty"`
	ErrorRetryable bool   `json:"error_retryable,omitempty"`
	DeadLettered   bool   `json:"dead_lettered,omitempty"`

	// AttemptCount is incremented on each claim and never exceeds
	// MaxAttempts.
	AttemptCount int `json:"attempt_count"`
	MaxAttempts  int `json:"max_attempts"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	cp.FileIDs = append([]string(nil), j.FileIDs...)
	if j.ReportedAt != nil {
		t := *j.ReportedAt
		cp.ReportedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// maxFileRefLen bounds a single opaque file reference.
const maxFileRefLen = 1024

// ValidateFileRef checks that a single opaque file reference is
// well-formed: non-empty, within length bounds, and free of control
// characters. The reference content is otherwise uninterpreted.
func ValidateFileRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("empty file reference")
	}
	if len(ref) > maxFileRefLen {
		return fmt.Errorf("file reference exceeds %d bytes", maxFileRefLen)
	}
	for _, r := range ref {
		if unicode.IsControl(r) {
			return fmt.Errorf("file reference contains control characters")
		}
	}
	return nil
}
