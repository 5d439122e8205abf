package sqlite

type migration struct {
	version string
	name    string
	up      []string
}

// Times are stored as Unix microseconds (0 for unset); durations as
// nanoseconds.
var migrations = []migration{
	{
		version: "20240301120000",
		name:    "create_jobs_table",
		up: []string{
			`CREATE TABLE IF NOT EXISTS backlog_jobs (
				id                   TEXT PRIMARY KEY,
				type_tag             TEXT NOT NULL,
				queue_key            TEXT NOT NULL DEFAULT '',
				created_at           INTEGER NOT NULL,
				seq                  INTEGER NOT NULL,
				last_attempt_at      INTEGER NOT NULL DEFAULT 0,
				next_eligible_at     INTEGER NOT NULL DEFAULT 0,
				attempt              INTEGER NOT NULL DEFAULT 0,
				max_attempts         INTEGER NOT NULL,
				lifespan             INTEGER NOT NULL DEFAULT 0,
				priority             INTEGER NOT NULL DEFAULT 0,
				timeout              INTEGER NOT NULL DEFAULT 0,
				max_concurrent_queue INTEGER NOT NULL DEFAULT 1,
				max_concurrent_type  INTEGER NOT NULL DEFAULT 0,
				running              INTEGER NOT NULL DEFAULT 0,
				constraints          TEXT NOT NULL DEFAULT '[]',
				payload              BLOB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_backlog_jobs_order
				ON backlog_jobs (queue_key, created_at, seq)`,
		},
	},
	{
		version: "20240301120100",
		name:    "create_job_dependencies_table",
		up: []string{
			`CREATE TABLE IF NOT EXISTS backlog_job_dependencies (
				job_id    TEXT NOT NULL,
				parent_id TEXT NOT NULL,
				position  INTEGER NOT NULL,
				PRIMARY KEY (job_id, parent_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_backlog_job_dependencies_parent
				ON backlog_job_dependencies (parent_id)`,
		},
	},
}
