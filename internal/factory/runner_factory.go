package factory

import (
	"fmt"
	"os"

	"github.com/mikey/eposter/internal/adapters/runner"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// RunnerFactory creates runners for the daemon and the command line
type RunnerFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.SyncService
}

// NewRunnerFactory creates a new runner factory
func NewRunnerFactory(cfg *config.Config, logger *zap.Logger, service *core.SyncService) *RunnerFactory {
	return &RunnerFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
	}
}

// CreateScheduler creates the periodic sync runner
func (f *RunnerFactory) CreateScheduler() (*runner.Scheduler, error) {
	syncCfg, err := f.cfg.GetSync()
	if err != nil {
		return nil, fmt.Errorf("invalid sync configuration: %w", err)
	}
	return runner.NewScheduler(f.service, syncCfg.Interval, f.logger)
}

// CreateCLIRunner creates a one-shot runner writing to stdout
func (f *RunnerFactory) CreateCLIRunner(opts runner.CLIOptions) *runner.CLIRunner {
	return runner.NewCLIRunner(f.service, opts, os.Stdout, f.logger)
}
