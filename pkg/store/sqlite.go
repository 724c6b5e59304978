package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	_ "modernc.org/sqlite"          // driver "sqlite", pure Go
)

// SQLiteConfig contains configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the SQL driver: "sqlite3" (cgo) or "sqlite"
	// (pure Go). Default: "sqlite3".
	Driver string

	// MaxOpenConns is the maximum number of open connections. Default: 10.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 5.
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true.
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/polaris.db",
		Driver:       "sqlite3",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies pragmas, and initializes
// the schema.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = "sqlite3"
	}

	logger := slog.Default().With("component", "store.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize applies pragmas and creates the schema.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	busyMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyMs)); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, version)
	}

	return nil
}

// InsertRequestLog writes a new request log row.
func (s *SQLiteStore) InsertRequestLog(ctx context.Context, log *RequestLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (
			id, user, cluster, framework, model, endpoint,
			status_code, stream, received_at, backend_request_at,
			backend_response_at, result, metrics_processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
		log.ID, log.User, log.Cluster, log.Framework, log.Model, log.Endpoint,
		log.StatusCode, boolToInt(log.Stream), log.ReceivedAt,
		nullTime(log.BackendRequestAt), nullTime(log.BackendResponseAt), log.Result,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

// FinalizeRequestLog records a request's outcome.
func (s *SQLiteStore) FinalizeRequestLog(ctx context.Context, id string, statusCode int, result []byte, backendResponseAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE request_logs
		SET status_code = ?, result = ?, backend_response_at = ?
		WHERE id = ?
	`, statusCode, result, nullTime(backendResponseAt), id)
	if err != nil {
		return fmt.Errorf("failed to finalize request log: %w", err)
	}
	return nil
}

// requestLogColumns is the scan order used by every request log query.
const requestLogColumns = `
	id, user, cluster, framework, model, endpoint,
	status_code, stream, received_at, backend_request_at,
	backend_response_at, result, metrics_processed
`

// GetRequestLog fetches one row by id.
func (s *SQLiteStore) GetRequestLog(ctx context.Context, id string) (*RequestLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestLogColumns+` FROM request_logs WHERE id = ?`, id)
	return scanRequestLog(row)
}

// eligibleClause selects rows ready for metrics ingestion: finalized
// with a success status and a non-empty result, not yet processed.
const eligibleClause = `
	metrics_processed = 0
	AND status_code BETWEEN 200 AND 299
	AND result IS NOT NULL
	AND length(result) > 0
`

// ClaimUnprocessed claims up to limit eligible rows for workerID.
//
// The claim is a single UPDATE over a nested candidate select, so the
// driver serializes concurrent claimers on the write lock. A select in
// its own read transaction would take a snapshot that cannot be
// upgraded once another worker stamps first, and the loser's whole
// cycle would error out. With the one-statement form the second worker
// simply runs after the first, sees its stamps, and selects disjoint
// rows; neither waits beyond the write lock.
func (s *SQLiteStore) ClaimUnprocessed(ctx context.Context, workerID string, limit int, claimExpiry time.Duration) ([]*RequestLog, error) {
	now := time.Now()
	expiredBefore := now.Add(-claimExpiry)

	res, err := s.db.ExecContext(ctx, `
		UPDATE request_logs SET claimed_by = ?, claimed_at = ?
		WHERE id IN (
			SELECT id FROM request_logs
			WHERE `+eligibleClause+`
			AND (claimed_by IS NULL OR claimed_at < ?)
			ORDER BY received_at
			LIMIT ?
		)
	`, workerID, now, expiredBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp claims: %w", err)
	}
	stamped, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to count stamped claims: %w", err)
	}
	if stamped == 0 {
		return nil, nil
	}

	// Read back exactly this call's stamps: the (worker, timestamp)
	// pair distinguishes them from the worker's earlier claims.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestLogColumns+` FROM request_logs
		WHERE claimed_by = ? AND claimed_at = ?
		ORDER BY received_at
	`, workerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to read back claims: %w", err)
	}
	defer rows.Close()

	claimed := make([]*RequestLog, 0, stamped)
	for rows.Next() {
		log, err := scanRequestLog(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}

	return claimed, nil
}

// UpsertRequestMetrics writes the derived metrics row. Idempotent:
// conflicting writes overwrite with the same derived values.
func (s *SQLiteStore) UpsertRequestMetrics(ctx context.Context, metrics *RequestMetrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_metrics (
			request_id, prompt_tokens, completion_tokens, total_tokens,
			response_time_ms, tokens_per_second, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			total_tokens = excluded.total_tokens,
			response_time_ms = excluded.response_time_ms,
			tokens_per_second = excluded.tokens_per_second
	`,
		metrics.RequestID, metrics.PromptTokens, metrics.CompletionTokens,
		metrics.TotalTokens, metrics.ResponseTimeMs, metrics.TokensPerSecond,
		metrics.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert request metrics: %w", err)
	}
	return nil
}

// GetRequestMetrics fetches one derived row.
func (s *SQLiteStore) GetRequestMetrics(ctx context.Context, requestID string) (*RequestMetrics, error) {
	var m RequestMetrics
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, prompt_tokens, completion_tokens, total_tokens,
			response_time_ms, tokens_per_second, created_at
		FROM request_metrics WHERE request_id = ?
	`, requestID).Scan(
		&m.RequestID, &m.PromptTokens, &m.CompletionTokens, &m.TotalTokens,
		&m.ResponseTimeMs, &m.TokensPerSecond, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request metrics: %w", err)
	}
	return &m, nil
}

// MarkProcessed flips metrics_processed and releases the claim.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE request_logs
		SET metrics_processed = 1, claimed_by = NULL, claimed_at = NULL
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark rows processed: %w", err)
	}
	return nil
}

// ReleaseClaims drops a worker's claims without marking rows processed.
func (s *SQLiteStore) ReleaseClaims(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE request_logs
		SET claimed_by = NULL, claimed_at = NULL
		WHERE claimed_by = ? AND metrics_processed = 0
	`, workerID)
	if err != nil {
		return fmt.Errorf("failed to release claims: %w", err)
	}
	return nil
}

// MarkAllUnprocessed resets metrics_processed on every eligible row, for
// the one-time backfill pass.
func (s *SQLiteStore) MarkAllUnprocessed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE request_logs
		SET metrics_processed = 0, claimed_by = NULL, claimed_at = NULL
		WHERE status_code BETWEEN 200 AND 299
		AND result IS NOT NULL
		AND length(result) > 0
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark rows unprocessed: %w", err)
	}
	return res.RowsAffected()
}

// IngestionLag reports the ingestion backlog.
func (s *SQLiteStore) IngestionLag(ctx context.Context) (*LagStats, error) {
	var stats LagStats
	var oldest, newest sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(received_at), MAX(received_at)
		FROM request_logs
		WHERE `+eligibleClause,
	).Scan(&stats.UnprocessedCount, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingestion lag: %w", err)
	}

	if oldest.Valid {
		stats.OldestUnprocessed = oldest.Time
	}
	if newest.Valid {
		stats.NewestUnprocessed = newest.Time
	}
	return &stats, nil
}

// InsertBatchJob writes a new batch job.
func (s *SQLiteStore) InsertBatchJob(ctx context.Context, job *BatchJob) error {
	taskIDs, err := json.Marshal(job.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal task ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (
			id, backend_batch_id, user, model, endpoint, status, task_ids,
			input_file, output_folder, output_location, error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.BackendBatchID, job.User, job.Model, job.Endpoint,
		job.Status, string(taskIDs), job.InputFile, job.OutputFolder,
		job.OutputLocation, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch job: %w", err)
	}
	return nil
}

// GetBatchJob fetches one batch job by gateway id.
func (s *SQLiteStore) GetBatchJob(ctx context.Context, id string) (*BatchJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, backend_batch_id, user, model, endpoint, status, task_ids,
			input_file, output_folder, output_location, error,
			created_at, updated_at
		FROM batch_jobs WHERE id = ?
	`, id)
	return scanBatchJob(row)
}

// UpdateBatchJobStatus advances a batch's status. The WHERE clause
// enforces monotonicity: terminal rows and Running→Pending regressions
// are silently ignored, which makes polling idempotent.
func (s *SQLiteStore) UpdateBatchJobStatus(ctx context.Context, id, status, errMsg, outputLocation string) error {
	if _, ok := batchRank[status]; !ok {
		return fmt.Errorf("unknown batch status %q", status)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = ?,
			error = CASE WHEN ? = '' THEN error ELSE ? END,
			output_location = CASE WHEN ? = '' THEN output_location ELSE ? END,
			updated_at = ?
		WHERE id = ?
		AND status NOT IN ('completed', 'failed')
		AND NOT (status = 'running' AND ? = 'pending')
	`, status, errMsg, errMsg, outputLocation, outputLocation, time.Now(), id, status)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	return nil
}

// ListNonTerminalBatchJobs returns every pending or running batch,
// oldest first.
func (s *SQLiteStore) ListNonTerminalBatchJobs(ctx context.Context) ([]*BatchJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend_batch_id, user, model, endpoint, status, task_ids,
			input_file, output_folder, output_location, error,
			created_at, updated_at
		FROM batch_jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal batches: %w", err)
	}
	defer rows.Close()

	var jobs []*BatchJob
	for rows.Next() {
		job, err := scanBatchJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountNonTerminalBatchJobs counts a user's pending plus running batches.
func (s *SQLiteStore) CountNonTerminalBatchJobs(ctx context.Context, user string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM batch_jobs
		WHERE user = ? AND status IN ('pending', 'running')
	`, user).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user batches: %w", err)
	}
	return count, nil
}

// InsertBatchLineResults records per-line outcomes. INSERT OR REPLACE
// keeps the write idempotent for re-polled completed batches.
func (s *SQLiteStore) InsertBatchLineResults(ctx context.Context, results []*BatchLineResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin line result transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO batch_line_results (
			batch_id, line, ok, result, error_message, error_code
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare line result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx,
			r.BatchID, r.Line, boolToInt(r.OK), r.Result, r.ErrorMessage, r.ErrorCode,
		); err != nil {
			return fmt.Errorf("failed to insert line result: %w", err)
		}
	}

	return tx.Commit()
}

// ListBatchLineResults returns a batch's line outcomes in line order.
func (s *SQLiteStore) ListBatchLineResults(ctx context.Context, batchID string) ([]*BatchLineResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, line, ok, result, error_message, error_code
		FROM batch_line_results
		WHERE batch_id = ?
		ORDER BY line
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line results: %w", err)
	}
	defer rows.Close()

	var results []*BatchLineResult
	for rows.Next() {
		var r BatchLineResult
		var ok int
		if err := rows.Scan(&r.BatchID, &r.Line, &ok, &r.Result, &r.ErrorMessage, &r.ErrorCode); err != nil {
			return nil, fmt.Errorf("failed to scan line result: %w", err)
		}
		r.OK = ok != 0
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRequestLog scans one request log row.
func scanRequestLog(row scanner) (*RequestLog, error) {
	var log RequestLog
	var stream, processed int
	var backendReq, backendResp sql.NullTime

	err := row.Scan(
		&log.ID, &log.User, &log.Cluster, &log.Framework, &log.Model,
		&log.Endpoint, &log.StatusCode, &stream, &log.ReceivedAt,
		&backendReq, &backendResp, &log.Result, &processed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request log: %w", err)
	}

	log.Stream = stream != 0
	log.MetricsProcessed = processed != 0
	if backendReq.Valid {
		log.BackendRequestAt = backendReq.Time
	}
	if backendResp.Valid {
		log.BackendResponseAt = backendResp.Time
	}
	return &log, nil
}

// scanBatchJob scans one batch job row.
func scanBatchJob(row scanner) (*BatchJob, error) {
	var job BatchJob
	var taskIDs string

	err := row.Scan(
		&job.ID, &job.BackendBatchID, &job.User, &job.Model, &job.Endpoint,
		&job.Status, &taskIDs, &job.InputFile, &job.OutputFolder,
		&job.OutputLocation, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch job: %w", err)
	}

	if err := json.Unmarshal([]byte(taskIDs), &job.TaskIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task ids: %w", err)
	}
	return &job, nil
}

// boolToInt converts a bool for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullTime converts a zero time to NULL.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
