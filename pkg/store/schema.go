package store

// SchemaVersion identifies the current schema. Bumped on any DDL change.
const SchemaVersion = 1

// Schema creates the runtime tables. IF NOT EXISTS keeps initialization
// idempotent across restarts.
const Schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS request_logs (
	id                  TEXT PRIMARY KEY,
	user                TEXT NOT NULL,
	cluster             TEXT NOT NULL,
	framework           TEXT NOT NULL,
	model               TEXT NOT NULL,
	endpoint            TEXT NOT NULL,
	status_code         INTEGER NOT NULL DEFAULT 0,
	stream              INTEGER NOT NULL DEFAULT 0,
	received_at         TIMESTAMP NOT NULL,
	backend_request_at  TIMESTAMP,
	backend_response_at TIMESTAMP,
	result              BLOB,
	metrics_processed   INTEGER NOT NULL DEFAULT 0,
	claimed_by          TEXT,
	claimed_at          TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_request_logs_unprocessed
	ON request_logs (metrics_processed, status_code)
	WHERE metrics_processed = 0;

CREATE INDEX IF NOT EXISTS idx_request_logs_received_at
	ON request_logs (received_at);

CREATE TABLE IF NOT EXISTS request_metrics (
	request_id        TEXT PRIMARY KEY,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	response_time_ms  INTEGER NOT NULL DEFAULT 0,
	tokens_per_second REAL NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_jobs (
	id               TEXT PRIMARY KEY,
	backend_batch_id TEXT NOT NULL DEFAULT '',
	user             TEXT NOT NULL,
	model            TEXT NOT NULL,
	endpoint         TEXT NOT NULL,
	status           TEXT NOT NULL,
	task_ids         TEXT NOT NULL DEFAULT '[]',
	input_file       TEXT NOT NULL DEFAULT '',
	output_folder    TEXT NOT NULL DEFAULT '',
	output_location  TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_nonterminal
	ON batch_jobs (status, created_at)
	WHERE status IN ('pending', 'running');

CREATE INDEX IF NOT EXISTS idx_batch_jobs_user
	ON batch_jobs (user, status);

CREATE TABLE IF NOT EXISTS batch_line_results (
	batch_id      TEXT NOT NULL,
	line          INTEGER NOT NULL,
	ok            INTEGER NOT NULL,
	result        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	error_code    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, line)
);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `
INSERT OR IGNORE INTO schema_version (version) VALUES (?)
`

// GetSchemaVersion reads the recorded schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version LIMIT 1
`
