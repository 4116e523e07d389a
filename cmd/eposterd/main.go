package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mikey/eposter/internal/adapters/ledger"
	"github.com/mikey/eposter/internal/adapters/runner"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/di"
	"github.com/mikey/eposter/internal/factory"
	"github.com/mikey/eposter/internal/ports"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configFile)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	cfg *config.Config,
	scheduler *runner.Scheduler,
	provider core.ManifestProvider,
	store ledger.Store,
) error {
	defer logger.Sync()

	var r ports.Runner = scheduler

	// Start the scheduler
	if err := r.Start(); err != nil {
		logger.Error("Failed to start scheduler", zap.Error(err))
		return err
	}

	// Pick up a new screen number without a restart
	if cfg.OnChange(func() {
		reloadDevice(cfg, provider, logger)
		scheduler.Trigger()
	}) {
		logger.Info("Watching configuration file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	err := multierr.Combine(r.Stop(), store.Stop())
	if err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}

func reloadDevice(cfg *config.Config, provider core.ManifestProvider, logger *zap.Logger) {
	targeter, ok := provider.(factory.DeviceTargeter)
	if !ok {
		return
	}
	deviceID := cfg.GetDisplay().DeviceID
	if deviceID == targeter.DeviceID() {
		return
	}
	logger.Info("Display device changed",
		zap.String("from", targeter.DeviceID()),
		zap.String("to", deviceID))
	targeter.SetDeviceID(deviceID)
}
