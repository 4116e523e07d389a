package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mikey/eposter/internal/adapters/ledger"
	"github.com/mikey/eposter/internal/adapters/runner"
	"github.com/mikey/eposter/internal/di"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cli *runner.CLIRunner, store ledger.Store) error {
	defer logger.Sync()

	// Interrupt cancels the sync in progress
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			logger.Info("Interrupted, cancelling sync")
			cli.Stop()
		}
	}()

	return multierr.Append(cli.Start(), store.Stop())
}
