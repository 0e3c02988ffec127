package sqlite

// migrations are applied in order on every startup; each statement is
// idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS exportq_jobs (
		id              TEXT PRIMARY KEY,
		status          TEXT NOT NULL CHECK (status IN ('queued', 'processing', 'completed', 'failed')),
		file_ids        TEXT NOT NULL,
		progress        INTEGER NOT NULL DEFAULT 0,
		eta_seconds     INTEGER NOT NULL DEFAULT 0,
		reported_at     TIMESTAMP,
		artifact_key    TEXT NOT NULL DEFAULT '',
		artifact_size   INTEGER NOT NULL DEFAULT 0,
		error_message   TEXT NOT NULL DEFAULT '',
		error_retryable INTEGER NOT NULL DEFAULT 0,
		dead_lettered   INTEGER NOT NULL DEFAULT 0,
		attempt_count   INTEGER NOT NULL DEFAULT 0,
		max_attempts    INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL,
		completed_at    TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_exportq_jobs_status_created
		ON exportq_jobs (status, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_exportq_jobs_completed
		ON exportq_jobs (completed_at)
		WHERE status IN ('completed', 'failed')`,

	`CREATE TABLE IF NOT EXISTS exportq_dlq (
		id            TEXT PRIMARY KEY,
		job_id        TEXT NOT NULL,
		file_ids      TEXT NOT NULL,
		error         TEXT NOT NULL,
		retryable     INTEGER NOT NULL DEFAULT 0,
		attempt_count INTEGER NOT NULL,
		max_attempts  INTEGER NOT NULL,
		failed_at     TIMESTAMP NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_exportq_dlq_failed_at
		ON exportq_dlq (failed_at)`,
}
