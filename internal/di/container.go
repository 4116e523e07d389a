package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/eposter/internal/adapters/ledger"
	"github.com/mikey/eposter/internal/adapters/runner"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/factory"
	"github.com/mikey/eposter/internal/logging"
)

// BuildContainer creates and configures a dependency injection container.
// An empty configPath searches the default config locations.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		if configPath != "" {
			return config.Load(configPath)
		}
		return config.New()
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register scheduler
	if err := container.Provide(func(f *factory.RunnerFactory) (*runner.Scheduler, error) {
		return f.CreateScheduler()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCommon registers everything between configuration and runners
func provideCommon(container *dig.Container) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewCacheFactory,
		factory.NewLedgerFactory,
		factory.NewManifestFactory,
		factory.NewNotifierFactory,
		factory.NewRunnerFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register poster cache
	if err := container.Provide(func(f *factory.CacheFactory) (core.PosterCache, error) {
		return f.CreatePosterCache()
	}); err != nil {
		return err
	}

	// Register manifest provider
	if err := container.Provide(func(f *factory.ManifestFactory) (core.ManifestProvider, error) {
		return f.CreateManifestProvider()
	}); err != nil {
		return err
	}

	// Register ledger, both as a store and as the service port
	if err := container.Provide(func(f *factory.LedgerFactory) (ledger.Store, error) {
		return f.CreateLedger()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s ledger.Store) core.SyncLedger {
		return s
	}); err != nil {
		return err
	}

	// Register notifier
	if err := container.Provide(func(f *factory.NotifierFactory) (core.Notifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return err
	}

	// Register sync service
	if err := container.Provide(func(
		provider core.ManifestProvider,
		cache core.PosterCache,
		store core.SyncLedger,
		notifier core.Notifier,
		logger *zap.Logger,
	) *core.SyncService {
		return core.NewSyncService(provider, cache, store, notifier, logger.Named("sync"))
	}); err != nil {
		return err
	}

	return nil
}
