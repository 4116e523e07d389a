package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "MySQL",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(36) NOT NULL,
			device_id VARCHAR(255) NOT NULL DEFAULT '',
			source VARCHAR(32) NOT NULL DEFAULT '',
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL,
			records INT NOT NULL,
			entries INT NOT NULL,
			downloaded INT NOT NULL,
			deleted INT NOT NULL,
			skipped INT NOT NULL,
			failed INT NOT NULL,
			error TEXT NOT NULL,
			INDEX idx_sync_runs_started_at (started_at)
		)`,
		`CREATE TABLE IF NOT EXISTS download_failures (
			poster_id VARCHAR(255) PRIMARY KEY,
			source_url TEXT NOT NULL,
			reason VARCHAR(32) NOT NULL,
			message TEXT NOT NULL,
			attempts INT NOT NULL,
			last_attempt BIGINT NOT NULL
		)`,
	},
	upsertFailure: `
		INSERT INTO download_failures (poster_id, source_url, reason, message, attempts, last_attempt)
		VALUES (?, ?, ?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			source_url = VALUES(source_url),
			reason = VALUES(reason),
			message = VALUES(message),
			attempts = attempts + 1,
			last_attempt = VALUES(last_attempt)
	`,
}

// MySQLLedger is a MySQL implementation of the SyncLedger interface
type MySQLLedger struct {
	*sqlLedger
}

// NewMySQLLedger connects to dsn and creates the ledger tables if needed
func NewMySQLLedger(dsn string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*MySQLLedger, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	l, err := newSQLLedger(db, mysqlDialect, logger, retention, cleanupFreq)
	if err != nil {
		return nil, err
	}
	return &MySQLLedger{sqlLedger: l}, nil
}
