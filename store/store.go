// Package store defines the composite persistence contract: job
// records plus the dead letter channel behind a single connection
// lifecycle. Implementations live in subpackages (memory, sqlite,
// postgres) and are injected into the engine; the engine itself never
// touches a database handle.
package store

import (
	"context"

	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/job"
)

// Store is the full persistence surface an exportq deployment needs.
type Store interface {
	job.Store
	dlq.Store

	// Migrate creates or upgrades the backing schema. Safe to call on
	// every startup.
	Migrate(ctx context.Context) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources. The store rejects all
	// operations afterwards.
	Close() error
}
