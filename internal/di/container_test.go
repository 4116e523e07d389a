package di

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/eposter/internal/adapters/ledger"
	"github.com/mikey/eposter/internal/adapters/runner"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/factory"
)

func TestParseFlagSet(t *testing.T) {
	flags := ParseFlagSet(flag.NewFlagSet("eposter-sync", flag.ContinueOnError), []string{
		"-device-id", "3", "-parallel", "4", "-timeout", "5s", "-lookup", "17",
	})
	if flags.DeviceID != "3" || flags.Parallel != 4 || flags.Timeout != 5*time.Second {
		t.Errorf("ParseFlagSet() = %+v", flags)
	}
	if opts := flags.Options(); opts.Lookup != "17" || opts.List {
		t.Errorf("Options() = %+v", opts)
	}
}

func TestBuildCLIContainer(t *testing.T) {
	dir := t.TempDir()
	flags := ParseFlagSet(flag.NewFlagSet("eposter-sync", flag.ContinueOnError), []string{
		"-cache-dir", filepath.Join(dir, "cache"),
		"-manifest", filepath.Join(dir, "api_data.json"),
		"-device-id", "2",
		"-parallel", "3",
	})

	container, err := BuildCLIContainer(flags)
	if err != nil {
		t.Fatalf("BuildCLIContainer() error = %v", err)
	}

	err = container.Invoke(func(
		cfg *config.Config,
		cli *runner.CLIRunner,
		provider core.ManifestProvider,
		store ledger.Store,
	) error {
		defer store.Stop()

		if got := cfg.GetManifest().Source; got != "file" {
			t.Errorf("manifest source = %q, want file", got)
		}
		cacheCfg, err := cfg.GetCache()
		if err != nil {
			return err
		}
		if cacheCfg.MaxParallel != 3 {
			t.Errorf("max parallel = %d, want 3", cacheCfg.MaxParallel)
		}
		if _, ok := store.(*ledger.MemoryLedger); !ok {
			t.Errorf("ledger = %T, want memory ledger", store)
		}
		targeter, ok := provider.(factory.DeviceTargeter)
		if !ok {
			t.Fatalf("provider %T cannot be retargeted", provider)
		}
		if targeter.DeviceID() != "2" {
			t.Errorf("device id = %q, want 2", targeter.DeviceID())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func TestBuildCLIContainerBadConfigFile(t *testing.T) {
	flags := &CLIFlags{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}
	container, err := BuildCLIContainer(flags)
	if err != nil {
		t.Fatalf("BuildCLIContainer() error = %v", err)
	}
	if err := container.Invoke(func(*runner.CLIRunner) {}); err == nil {
		t.Error("Invoke() with a missing config file error = nil")
	}
}
