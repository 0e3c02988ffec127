package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veldtlabs/exportq"
	"github.com/veldtlabs/exportq/dlq"
	"github.com/veldtlabs/exportq/id"
)

// PushDLQ adds a dead-lettered job entry.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	fileIDs, err := json.Marshal(entry.FileIDs)
	if err != nil {
		return fmt.Errorf("exportq/sqlite: marshal dlq file_ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exportq_dlq (`+dlqColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.JobID.String(), string(fileIDs), entry.Error, entry.Retryable,
		entry.AttemptCount, entry.MaxAttempts, entry.FailedAt.UTC(), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("exportq/sqlite: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries ordered by FailedAt descending.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM exportq_dlq ORDER BY failed_at DESC`
	var args []any

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exportq/sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("exportq/sqlite: list dlq scan: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exportq/sqlite: list dlq: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dlqColumns+` FROM exportq_dlq WHERE id = ?`,
		entryID.String(),
	)
	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, exportq.ErrDLQNotFound
		}
		return nil, fmt.Errorf("exportq/sqlite: get dlq: %w", err)
	}
	return e, nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exportq_dlq WHERE failed_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("exportq/sqlite: purge dlq: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exportq_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("exportq/sqlite: count dlq: %w", err)
	}
	return count, nil
}
