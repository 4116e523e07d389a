package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/eposter/internal/adapters/ledger"
	"github.com/mikey/eposter/internal/config"
	"go.uber.org/zap"
)

// LedgerFactory creates sync ledgers based on configuration
type LedgerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLedgerFactory creates a new ledger factory
func NewLedgerFactory(cfg *config.Config, logger *zap.Logger) *LedgerFactory {
	return &LedgerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLedger creates a ledger store based on the configuration
func (f *LedgerFactory) CreateLedger() (ledger.Store, error) {
	ledgerCfg, err := f.cfg.GetLedger()
	if err != nil {
		return nil, fmt.Errorf("invalid ledger configuration: %w", err)
	}
	logger := f.logger.Named("ledger")

	if !ledgerCfg.Enabled {
		return ledger.NewMemoryLedger(logger, ledgerCfg.Retention, 0), nil
	}

	switch ledgerCfg.Type {
	case "memory":
		return ledger.NewMemoryLedger(logger, ledgerCfg.Retention, ledgerCfg.CleanupFrequency), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(ledgerCfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return ledger.NewSQLiteLedger(ledgerCfg.SQLitePath, logger, ledgerCfg.Retention, ledgerCfg.CleanupFrequency)
	case "mysql":
		return ledger.NewMySQLLedger(ledgerCfg.MySQLDSN, logger, ledgerCfg.Retention, ledgerCfg.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", ledgerCfg.Type)
	}
}
