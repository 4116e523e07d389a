package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name          string
	schema        []string
	upsertFailure string
}

// sqlLedger implements SyncLedger on top of database/sql. Timestamps are
// stored as unix milliseconds so both backends share the same queries.
type sqlLedger struct {
	db        *sql.DB
	dialect   dialect
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time
	stop      func()
}

func newSQLLedger(db *sql.DB, d dialect, logger *zap.Logger, retention, cleanupFreq time.Duration) (*sqlLedger, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}

	l := &sqlLedger{
		db:        db,
		dialect:   d,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
	l.stop = startCleanupTask(l, logger, cleanupFreq)
	return l, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// RecordRun stores the summary of a run
func (l *sqlLedger) RecordRun(ctx context.Context, r *core.SyncReport) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, device_id, source, started_at, finished_at,
			records, entries, downloaded, deleted, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.DeviceID, r.Source, toMillis(r.StartedAt), toMillis(r.FinishedAt),
		r.Records, r.Entries, r.Downloaded, r.Deleted, r.Skipped, r.Failed, r.Err)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run, or nil when none is stored
func (l *sqlLedger) LastRun(ctx context.Context) (*core.SyncReport, error) {
	var r core.SyncReport
	var startedAt, finishedAt int64

	err := l.db.QueryRowContext(ctx, `
		SELECT run_id, device_id, source, started_at, finished_at,
			records, entries, downloaded, deleted, skipped, failed, error
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.RunID, &r.DeviceID, &r.Source, &startedAt, &finishedAt,
		&r.Records, &r.Entries, &r.Downloaded, &r.Deleted, &r.Skipped, &r.Failed, &r.Err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last sync run: %w", err)
	}

	r.StartedAt = fromMillis(startedAt)
	r.FinishedAt = fromMillis(finishedAt)
	return &r, nil
}

// RecordFailure upserts a failure and bumps its attempt counter
func (l *sqlLedger) RecordFailure(ctx context.Context, f core.DownloadFailure) error {
	_, err := l.db.ExecContext(ctx, l.dialect.upsertFailure,
		f.ID, f.SourceURL, string(f.Reason), failureMessage(f), toMillis(f.At))
	if err != nil {
		return fmt.Errorf("failed to record download failure: %w", err)
	}
	return nil
}

// ClearFailures removes failures for posters that are now cached
func (l *sqlLedger) ClearFailures(ctx context.Context, posterIDs []string) error {
	if len(posterIDs) == 0 {
		return nil
	}
	query := `DELETE FROM download_failures WHERE poster_id IN (` + placeholders(len(posterIDs)) + `)`
	if _, err := l.db.ExecContext(ctx, query, args(posterIDs)...); err != nil {
		return fmt.Errorf("failed to clear download failures: %w", err)
	}
	return nil
}

// RetainFailures drops failures for posters outside posterIDs
func (l *sqlLedger) RetainFailures(ctx context.Context, posterIDs []string) error {
	query := `DELETE FROM download_failures`
	if len(posterIDs) > 0 {
		query += ` WHERE poster_id NOT IN (` + placeholders(len(posterIDs)) + `)`
	}
	if _, err := l.db.ExecContext(ctx, query, args(posterIDs)...); err != nil {
		return fmt.Errorf("failed to prune download failures: %w", err)
	}
	return nil
}

// Failures lists the current failures
func (l *sqlLedger) Failures(ctx context.Context) ([]core.LedgerFailure, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT poster_id, source_url, reason, message, attempts, last_attempt
		FROM download_failures
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query download failures: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerFailure
	for rows.Next() {
		var f core.LedgerFailure
		var lastAttempt int64
		if err := rows.Scan(&f.PosterID, &f.SourceURL, &f.Reason, &f.Message, &f.Attempts, &lastAttempt); err != nil {
			return nil, fmt.Errorf("failed to scan download failure: %w", err)
		}
		f.LastAttempt = fromMillis(lastAttempt)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read download failures: %w", err)
	}

	sortFailures(out)
	return out, nil
}

// Cleanup removes runs older than the retention window
func (l *sqlLedger) Cleanup(ctx context.Context) error {
	if l.retention <= 0 {
		return nil
	}

	cutoff := l.now().Add(-l.retention)
	result, err := l.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE started_at <= ?`, toMillis(cutoff))
	if err != nil {
		return fmt.Errorf("failed to clean up expired sync runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		l.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		l.logger.Debug("Cleaned up expired sync runs", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (l *sqlLedger) Stop() error {
	l.stop()
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", l.dialect.name, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
