package core

import (
	"context"
)

// ManifestProvider supplies the current poster manifest
type ManifestProvider interface {
	// Fetch returns the latest manifest, falling back to local data when the
	// remote source is unreachable
	Fetch(ctx context.Context) (*Manifest, error)
}

// PosterCache keeps the local image cache in line with a manifest
type PosterCache interface {
	// Sync reconciles the cache directory with records
	Sync(ctx context.Context, records []PosterRecord) (*SyncResult, error)

	// Lookup resolves a poster id to a cached image path
	Lookup(id string) (string, bool)

	// List returns every finished entry in the cache directory
	List() ([]CacheEntry, error)
}

// SyncLedger persists sync history and per-poster download failures
type SyncLedger interface {
	// RecordRun stores the summary of a service run
	RecordRun(ctx context.Context, report *SyncReport) error

	// LastRun returns the most recent run, or nil when none is stored
	LastRun(ctx context.Context) (*SyncReport, error)

	// RecordFailure upserts a failure and bumps its attempt counter
	RecordFailure(ctx context.Context, failure DownloadFailure) error

	// ClearFailures removes failures for posters that are now cached
	ClearFailures(ctx context.Context, posterIDs []string) error

	// RetainFailures drops failures for posters outside posterIDs
	RetainFailures(ctx context.Context, posterIDs []string) error

	// Failures lists the current failures
	Failures(ctx context.Context) ([]LedgerFailure, error)

	// Cleanup removes runs older than the retention window
	Cleanup(ctx context.Context) error
}

// Notifier tells an operator about problematic syncs
type Notifier interface {
	NotifySync(ctx context.Context, report *SyncReport, failures []DownloadFailure) error
}
