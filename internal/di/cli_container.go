package di

import (
	"flag"
	"os"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/eposter/internal/adapters/runner"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/factory"
	"github.com/mikey/eposter/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Source flags
	APIURL       string
	Token        string
	DeviceID     string
	ManifestFile string

	// Cache flags
	CacheDir       string
	Timeout        time.Duration
	Parallel       int
	ForceLandscape bool

	// Action flags
	Lookup string
	List   bool

	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	return ParseFlagSet(flag.CommandLine, os.Args[1:])
}

// ParseFlagSet registers the CLI flags on fs and parses args
func ParseFlagSet(fs *flag.FlagSet, args []string) *CLIFlags {
	flags := &CLIFlags{}

	// Source flags
	fs.StringVar(&flags.APIURL, "api-url", config.DefaultPosterAPIURL, "Poster list API endpoint")
	fs.StringVar(&flags.Token, "token", "", "Poster API token")
	fs.StringVar(&flags.DeviceID, "device-id", "", "Screen number of this kiosk")
	fs.StringVar(&flags.ManifestFile, "manifest", "", "Read the manifest from this JSON file instead of the API")

	// Cache flags
	fs.StringVar(&flags.CacheDir, "cache-dir", "./eposter_cache", "Poster image cache directory")
	fs.DurationVar(&flags.Timeout, "timeout", 15*time.Second, "Per-image download timeout")
	fs.IntVar(&flags.Parallel, "parallel", 1, "Maximum concurrent downloads")
	fs.BoolVar(&flags.ForceLandscape, "landscape", false, "Rotate portrait posters to landscape")

	// Action flags
	fs.StringVar(&flags.Lookup, "lookup", "", "Print the cached path of a poster id and exit")
	fs.BoolVar(&flags.List, "list", false, "List cached posters and exit")

	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	fs.Parse(args)
	return flags
}

// Options returns the runner options selected by the flags
func (f *CLIFlags) Options() runner.CLIOptions {
	return runner.CLIOptions{
		Lookup:  f.Lookup,
		List:    f.List,
		Verbose: f.Verbose,
	}
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.Load(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register CLI runner
	if err := container.Provide(func(f *factory.RunnerFactory, flags *CLIFlags) *runner.CLIRunner {
		return f.CreateCLIRunner(flags.Options())
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("api.poster_api_url", flags.APIURL)
	v.Set("api.poster_token", flags.Token)
	v.Set("display.device_id", flags.DeviceID)
	if flags.ManifestFile != "" {
		v.Set("manifest.source", "file")
		v.Set("manifest.file", flags.ManifestFile)
	}

	v.Set("cache.dir", flags.CacheDir)
	v.Set("cache.download_timeout", flags.Timeout.String())
	v.Set("cache.max_parallel", flags.Parallel)
	v.Set("cache.force_landscape", flags.ForceLandscape)

	// one-shot runs keep no history
	v.Set("ledger.type", "memory")
	v.Set("ledger.enabled", false)
	if flags.Verbose {
		v.Set("logging.level", "debug")
	}

	return config.NewFromViper(v)
}
