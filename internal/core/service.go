package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/eposter/internal/utils"
	"go.uber.org/zap"
)

// SyncService fetches the manifest, syncs the image cache and keeps the
// ledger up to date. Callers must not run it concurrently with itself.
type SyncService struct {
	provider ManifestProvider
	cache    PosterCache
	ledger   SyncLedger
	notifier Notifier
	logger   *zap.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(
	provider ManifestProvider,
	cache PosterCache,
	ledger SyncLedger,
	notifier Notifier,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		provider: provider,
		cache:    cache,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
	}
}

// Run performs one full refresh. A failed manifest fetch leaves the cache
// untouched so previously downloaded posters stay available offline.
func (s *SyncService) Run(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	manifest, err := s.provider.Fetch(ctx)
	if err != nil {
		s.logger.Warn("Manifest unavailable, keeping current cache", zap.Error(err))
		s.finish(ctx, report, nil, err)
		return report, err
	}
	report.DeviceID = manifest.DeviceID
	report.Source = manifest.Source
	report.Records = len(manifest.Records)

	result, err := s.cache.Sync(ctx, manifest.Records)
	if err != nil {
		s.logger.Error("Cache sync failed", zap.Error(err))
		s.finish(ctx, report, nil, err)
		return report, err
	}

	report.Entries = len(result.Entries)
	report.Downloaded = len(result.Downloaded)
	report.Deleted = len(result.Deleted)
	report.Skipped = len(result.Skipped)
	report.Failed = len(result.Failures)
	if result.CleanupErr != nil {
		s.logger.Warn("Some stale files could not be removed", zap.Error(result.CleanupErr))
	}

	s.updateFailures(ctx, manifest.Records, result)
	s.finish(ctx, report, result.Failures, nil)

	s.logger.Info("Sync complete",
		zap.String("run_id", report.RunID),
		zap.String("source", report.Source),
		zap.Int("records", report.Records),
		zap.Int("entries", report.Entries),
		zap.Int("downloaded", report.Downloaded),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	return report, nil
}

// Lookup resolves a poster id to its cached image
func (s *SyncService) Lookup(id string) (string, bool) {
	return s.cache.Lookup(id)
}

// List returns every cached poster image
func (s *SyncService) List() ([]CacheEntry, error) {
	return s.cache.List()
}

// LastRun returns the most recent recorded run
func (s *SyncService) LastRun(ctx context.Context) (*SyncReport, error) {
	return s.ledger.LastRun(ctx)
}

// Failures returns posters that keep failing to download
func (s *SyncService) Failures(ctx context.Context) ([]LedgerFailure, error) {
	return s.ledger.Failures(ctx)
}

func (s *SyncService) updateFailures(ctx context.Context, records []PosterRecord, result *SyncResult) {
	if len(records) > 0 {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, utils.CanonicalID(r.ID))
		}
		if err := s.ledger.RetainFailures(ctx, ids); err != nil {
			s.logger.Error("Failed to prune ledger failures", zap.Error(err))
		}
	}

	cached := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		cached = append(cached, e.ID)
	}
	if err := s.ledger.ClearFailures(ctx, cached); err != nil {
		s.logger.Error("Failed to clear ledger failures", zap.Error(err))
	}

	for _, f := range result.Failures {
		if err := s.ledger.RecordFailure(ctx, f); err != nil {
			s.logger.Error("Failed to record download failure",
				zap.String("poster_id", f.ID),
				zap.Error(err))
		}
	}
}

func (s *SyncService) finish(ctx context.Context, report *SyncReport, failures []DownloadFailure, runErr error) {
	report.FinishedAt = time.Now()
	if runErr != nil {
		report.Err = runErr.Error()
	}

	previous, err := s.ledger.LastRun(ctx)
	if err != nil {
		s.logger.Warn("Failed to read previous sync run", zap.Error(err))
	}
	if err := s.ledger.RecordRun(ctx, report); err != nil {
		s.logger.Error("Failed to record sync run", zap.Error(err))
	}

	if report.Succeeded() {
		return
	}
	// An unreachable manifest on an offline kiosk is routine
	if errors.Is(runErr, ErrManifestUnavailable) {
		return
	}
	// Stopped by the caller
	if ctx.Err() != nil {
		return
	}
	if !s.changed(ctx, report, previous, failures) {
		s.logger.Debug("Sync problems unchanged since last notification",
			zap.String("run_id", report.RunID),
			zap.Int("failed", report.Failed))
		return
	}
	if err := s.notifier.NotifySync(ctx, report, failures); err != nil {
		s.logger.Error("Failed to send sync notification", zap.Error(err))
	}
}

// changed reports whether report shows a problem operators have not been
// told about: a new run error, or a failure on its first attempt.
func (s *SyncService) changed(ctx context.Context, report, previous *SyncReport, failures []DownloadFailure) bool {
	if report.Err != "" {
		return previous == nil || previous.Err != report.Err
	}

	stored, err := s.ledger.Failures(ctx)
	if err != nil {
		s.logger.Warn("Failed to read ledger failures", zap.Error(err))
		return true
	}
	attempts := make(map[string]int, len(stored))
	for _, f := range stored {
		attempts[f.PosterID] = f.Attempts
	}
	for _, f := range failures {
		if attempts[f.ID] <= 1 {
			return true
		}
	}
	return false
}
