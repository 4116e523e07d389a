package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// CacheService is what the command line needs from the sync service
type CacheService interface {
	Syncer
	Lookup(id string) (string, bool)
	List() ([]core.CacheEntry, error)
}

// CLIOptions selects what a CLIRunner does
type CLIOptions struct {
	// Lookup prints the cached path of one poster instead of syncing
	Lookup string
	// List prints every cached poster instead of syncing
	List    bool
	Verbose bool
}

// ErrNotCached is returned by a lookup for a poster that has no image
var ErrNotCached = errors.New("poster is not cached")

// CLIRunner runs a single sync, lookup or listing and prints the outcome
type CLIRunner struct {
	service CacheService
	opts    CLIOptions
	out     io.Writer
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCLIRunner creates a new CLI runner
func NewCLIRunner(service CacheService, opts CLIOptions, out io.Writer, logger *zap.Logger) *CLIRunner {
	return &CLIRunner{
		service: service,
		opts:    opts,
		out:     out,
		logger:  logger,
	}
}

// Start performs the requested action and returns when it is done
func (r *CLIRunner) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	switch {
	case r.opts.Lookup != "":
		return r.lookup(r.opts.Lookup)
	case r.opts.List:
		return r.list()
	default:
		return r.sync(ctx)
	}
}

// Stop cancels a running sync
func (r *CLIRunner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *CLIRunner) lookup(id string) error {
	path, ok := r.service.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	fmt.Fprintln(r.out, path)
	return nil
}

func (r *CLIRunner) list() error {
	entries, err := r.service.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(r.out, "%s\t%s\n", e.ID, e.Path)
	}
	if r.opts.Verbose {
		fmt.Fprintf(r.out, "%d poster(s) cached\n", len(entries))
	}
	return nil
}

func (r *CLIRunner) sync(ctx context.Context) error {
	fmt.Fprintf(r.out, "=== Poster Sync ===\n")
	startTime := time.Now()
	report, err := r.service.Run(ctx)
	duration := time.Since(startTime)

	if report != nil {
		fmt.Fprintf(r.out, "Device: %s\n", report.DeviceID)
		fmt.Fprintf(r.out, "Source: %s\n", report.Source)
		fmt.Fprintf(r.out, "Records: %d\n", report.Records)
		fmt.Fprintf(r.out, "Cached: %d\n", report.Entries)
		fmt.Fprintf(r.out, "Downloaded: %d\n", report.Downloaded)
		fmt.Fprintf(r.out, "Deleted: %d\n", report.Deleted)
		fmt.Fprintf(r.out, "Skipped: %d\n", report.Skipped)
		fmt.Fprintf(r.out, "Failed: %d\n", report.Failed)
	}
	fmt.Fprintf(r.out, "Processing time: %v\n", duration.Round(time.Millisecond))

	if err != nil {
		r.logger.Error("Poster sync failed", zap.Error(err))
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return err
	}
	if report != nil && report.Failed > 0 {
		return fmt.Errorf("%d poster(s) failed to download", report.Failed)
	}
	return nil
}
