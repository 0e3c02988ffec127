package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/id"
)

// PushDLQ adds a dead-lettered job entry.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exportq_dlq (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID.String(), entry.JobID.String(), entry.FileIDs, entry.Error, entry.Retryable,
		entry.AttemptCount, entry.MaxAttempts, entry.FailedAt.UTC(), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("exportq/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries ordered by FailedAt descending.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM exportq_dlq ORDER BY failed_at DESC`
	var args []any

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exportq/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("exportq/postgres: list dlq scan: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exportq/postgres: list dlq: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+dlqColumns+` FROM exportq_dlq WHERE id = $1`,
		entryID.String(),
	)
	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, exportq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("exportq/postgres: get dlq: %w", err)
	}
	return e, nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM exportq_dlq WHERE failed_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("exportq/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exportq_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("exportq/postgres: count dlq: %w", err)
	}
	return count, nil
}
