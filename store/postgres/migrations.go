package postgres

// migrations are applied in order on every startup; each statement is
// idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS exportq_jobs (
		id              TEXT PRIMARY KEY,
		status          TEXT NOT NULL CHECK (status IN ('queued', 'processing', 'completed', 'failed')),
		file_ids        TEXT[] NOT NULL,
		progress        INT NOT NULL DEFAULT 0,
		eta_seconds     BIGINT NOT NULL DEFAULT 0,
		reported_at     TIMESTAMPTZ,
		artifact_key    TEXT NOT NULL DEFAULT '',
		artifact_size   BIGINT NOT NULL DEFAULT 0,
		error_message   TEXT NOT NULL DEFAULT '',
		error_retryable BOOLEAN NOT NULL DEFAULT FALSE,
		dead_lettered   BOOLEAN NOT NULL DEFAULT FALSE,
		attempt_count   INT NOT NULL DEFAULT 0,
		max_attempts    INT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_exportq_jobs_status_created
		ON exportq_jobs (status, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_exportq_jobs_completed
		ON exportq_jobs (completed_at)
		WHERE status IN ('completed', 'failed')`,

	`CREATE TABLE IF NOT EXISTS exportq_dlq (
		id            TEXT PRIMARY KEY,
		job_id        TEXT NOT NULL,
		file_ids      TEXT[] NOT NULL,
		error         TEXT NOT NULL,
		retryable     BOOLEAN NOT NULL DEFAULT FALSE,
		attempt_count INT NOT NULL,
		max_attempts  INT NOT NULL,
		failed_at     TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_exportq_dlq_failed_at
		ON exportq_dlq (failed_at)`,
}
