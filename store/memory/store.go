// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing, development,
// and single-process deployments that can tolerate losing state on
// restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/id"
	"github.com/veldtlabs/exportq/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store = (*Store)(nil)
	_ dlq.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Job
	dlqs   map[string]*dlq.Entry
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		dlqs: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return exportq.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return exportq.ErrStoreClosed
	}

	if !j.Status.Valid() {
		return exportq.ErrInvalidTransition
	}
	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return exportq.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves the latest committed record for a job.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, exportq.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, exportq.ErrJobNotFound
	}
	return j.Clone(), nil
}

// SwapJob replaces the stored record with j if and only if the stored
// (status, attemptCount) still equals expect.
func (m *Store) SwapJob(_ context.Context, j *job.Job, expect job.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return exportq.ErrStoreClosed
	}

	if !j.Status.Valid() {
		return exportq.ErrInvalidTransition
	}
	key := j.ID.String()
	cur, ok := m.jobs[key]
	if !ok {
		return exportq.ErrJobNotFound
	}
	if cur.Status != expect.Status || cur.AttemptCount != expect.Attempt {
		return exportq.ErrVersionConflict
	}
	m.jobs[key] = j.Clone()
	return nil
}

// ListJobsByStatus returns jobs in the given status ordered by
// creation time.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, exportq.ErrStoreClosed
	}

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, exportq.ErrStoreClosed
	}

	var count int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeTerminalJobs removes completed and failed jobs whose CompletedAt
// is before the given time.
func (m *Store) PurgeTerminalJobs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, exportq.ErrStoreClosed
	}

	var count int64
	for key, j := range m.jobs {
		if !j.Status.Terminal() {
			continue
		}
		if j.CompletedAt != nil && j.CompletedAt.Before(before) {
			delete(m.jobs, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a dead-lettered job entry.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return exportq.ErrStoreClosed
	}

	m.dlqs[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries ordered by FailedAt descending.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, exportq.ErrStoreClosed
	}

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		result = append(result, e)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.After(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, exportq.ErrStoreClosed
	}

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, exportq.ErrDLQNotFound
	}
	return e, nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, exportq.ErrStoreClosed
	}

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, exportq.ErrStoreClosed
	}

	return int64(len(m.dlqs)), nil
}
