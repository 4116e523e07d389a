package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "SQLite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			device_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			records INTEGER NOT NULL,
			entries INTEGER NOT NULL,
			downloaded INTEGER NOT NULL,
			deleted INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS download_failures (
			poster_id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			reason TEXT NOT NULL,
			message TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_attempt INTEGER NOT NULL
		)`,
	},
	upsertFailure: `
		INSERT INTO download_failures (poster_id, source_url, reason, message, attempts, last_attempt)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(poster_id) DO UPDATE SET
			source_url = excluded.source_url,
			reason = excluded.reason,
			message = excluded.message,
			attempts = download_failures.attempts + 1,
			last_attempt = excluded.last_attempt
	`,
}

// SQLiteLedger is a SQLite implementation of the SyncLedger interface
type SQLiteLedger struct {
	*sqlLedger
}

// NewSQLiteLedger opens or creates the ledger database at dbPath
func NewSQLiteLedger(dbPath string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite3 serializes writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	l, err := newSQLLedger(db, sqliteDialect, logger, retention, cleanupFreq)
	if err != nil {
		return nil, err
	}
	return &SQLiteLedger{sqlLedger: l}, nil
}
