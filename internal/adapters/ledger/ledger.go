// Package ledger persists sync history and per-poster download failures.
package ledger

import "github.com/mikey/eposter/internal/core"

// Store is a SyncLedger owning background resources
type Store interface {
	core.SyncLedger

	// Stop stops background cleanup and releases the backend
	Stop() error
}

var (
	_ Store = (*MemoryLedger)(nil)
	_ Store = (*SQLiteLedger)(nil)
	_ Store = (*MySQLLedger)(nil)
)
