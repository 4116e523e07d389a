package imagecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/utils"
	"github.com/mikey/eposter/internal/whitelist"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	lockFileName   = ".sync.lock"
	lockRetryDelay = 100 * time.Millisecond

	defaultDownloadTimeout = 15 * time.Second
	defaultLockTimeout     = 30 * time.Second
	defaultMaxPixels       = 40_000_000
)

// Options configures a Synchronizer
type Options struct {
	Dir             string
	DownloadTimeout time.Duration
	MaxParallel     int
	MaxImageBytes   int64
	// MaxPixels caps decoded image dimensions (width * height)
	MaxPixels int64
	// StaleTempAge is how old an interrupted download must be before
	// cleanup removes it. Zero keeps them forever.
	StaleTempAge   time.Duration
	LockTimeout    time.Duration
	ForceLandscape bool
}

// Synchronizer keeps a flat directory of poster images, one file per
// poster id, in line with the latest manifest.
type Synchronizer struct {
	dir    string
	opts   Options
	client *http.Client
	hosts  *whitelist.Checker
	logger *zap.Logger

	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

// New creates a synchronizer for opts.Dir. The directory itself is created
// lazily by the first non-empty Sync.
func New(opts Options, client *http.Client, hosts *whitelist.Checker, logger *zap.Logger) (*Synchronizer, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("imagecache: cache directory is empty")
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("imagecache: resolve cache directory: %w", err)
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = defaultDownloadTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaultMaxPixels
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Dir = dir

	return &Synchronizer{
		dir:    dir,
		opts:   opts,
		client: client,
		hosts:  hosts,
		logger: logger.Named("imagecache"),
		lock:   flock.New(filepath.Join(dir, lockFileName)),
		now:    time.Now,
	}, nil
}

// Dir returns the absolute cache directory
func (s *Synchronizer) Dir() string {
	return s.dir
}

// Sync reconciles the cache directory with records: stale files are
// removed, missing images are downloaded and installed atomically, and
// images already present are reused without network I/O.
//
// An empty manifest leaves the directory untouched. Only directory-level
// problems are returned as errors; per-record problems are reported in the
// result and retried by the next call.
func (s *Synchronizer) Sync(ctx context.Context, records []core.PosterRecord) (*core.SyncResult, error) {
	result := &core.SyncResult{}
	if len(records) == 0 {
		s.logger.Info("Empty manifest, leaving cache untouched", zap.String("dir", s.dir))
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache directory %s: %w", core.ErrFilesystem, s.dir, err)
	}

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// One manifest snapshot drives both passes.
	valid, indexes := s.validRecords(records, result)
	if err := s.cleanup(valid, result); err != nil {
		return nil, err
	}
	s.reconcile(ctx, valid, indexes, result)

	return result, nil
}

func (s *Synchronizer) acquireLock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	ok, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	switch {
	case ok:
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s", core.ErrSyncLocked, s.lock.Path())
	case errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	default:
		return nil, fmt.Errorf("%w: acquire sync lock: %w", core.ErrFilesystem, err)
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release sync lock", zap.Error(err))
		}
	}, nil
}

// validRecords canonicalizes ids and drops records the cache cannot use.
// indexes holds the manifest position of each valid record.
func (s *Synchronizer) validRecords(records []core.PosterRecord, result *core.SyncResult) (valid []core.PosterRecord, indexes []int) {
	seen := make(map[string]struct{}, len(records))
	valid = make([]core.PosterRecord, 0, len(records))
	indexes = make([]int, 0, len(records))

	for i, rec := range records {
		id := utils.CanonicalID(rec.ID)
		url := strings.TrimSpace(rec.SourceURL)

		var reason core.SkipReason
		switch {
		case id == "":
			reason = core.SkipMissingID
		case url == "":
			reason = core.SkipMissingURL
		case !utils.ValidID(id):
			reason = core.SkipInvalidID
		}
		if reason == "" {
			if _, dup := seen[id]; dup {
				reason = core.SkipDuplicateID
			}
		}

		if reason != "" {
			result.Skipped = append(result.Skipped, core.SkippedRecord{Index: i, ID: id, Reason: reason})
			s.logger.Info("Skipping poster record",
				zap.Int("index", i),
				zap.String("poster_id", id),
				zap.String("reason", string(reason)))
			continue
		}

		seen[id] = struct{}{}
		rec.ID = id
		rec.SourceURL = url
		valid = append(valid, rec)
		indexes = append(indexes, i)
	}

	return valid, indexes
}

// reconcile makes sure every valid record has an installed image
func (s *Synchronizer) reconcile(ctx context.Context, valid []core.PosterRecord, indexes []int, result *core.SyncResult) {
	entries := make([]*core.CacheEntry, len(valid))
	failures := make([]*core.DownloadFailure, len(valid))
	fresh := make([]bool, len(valid))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallel)

	for i, rec := range valid {
		i, rec := i, rec
		if path, ok := s.Lookup(rec.ID); ok {
			entries[i] = &core.CacheEntry{ID: rec.ID, Path: path}
			continue
		}
		// The host policy only gates new downloads; a cached image stays valid.
		if !s.hosts.IsAllowed(rec.SourceURL) {
			result.Skipped = append(result.Skipped, core.SkippedRecord{Index: indexes[i], ID: rec.ID, Reason: core.SkipHostNotAllowed})
			s.logger.Info("Skipping poster record",
				zap.Int("index", indexes[i]),
				zap.String("poster_id", rec.ID),
				zap.String("reason", string(core.SkipHostNotAllowed)))
			continue
		}

		g.Go(func() error {
			s.logger.Info("Downloading poster",
				zap.String("poster_id", rec.ID),
				zap.String("url", rec.SourceURL))

			path, err := s.fetch(ctx, rec)
			if err != nil && ctx.Err() != nil {
				// an interrupted sync is not a poster failure
				s.logger.Debug("Download cancelled",
					zap.String("poster_id", rec.ID),
					zap.Error(err))
				return nil
			}
			if err != nil {
				reason := core.ClassifyDownloadError(err)
				failures[i] = &core.DownloadFailure{
					ID:        rec.ID,
					SourceURL: rec.SourceURL,
					Reason:    reason,
					Err:       err,
					At:        s.now(),
				}
				s.logger.Warn("Failed to cache poster",
					zap.String("poster_id", rec.ID),
					zap.String("url", rec.SourceURL),
					zap.String("reason", string(reason)),
					zap.Error(err))
				return nil
			}

			entries[i] = &core.CacheEntry{ID: rec.ID, Path: path}
			fresh[i] = true
			s.logger.Info("Cached poster",
				zap.String("poster_id", rec.ID),
				zap.String("path", path))
			return nil
		})
	}
	_ = g.Wait()

	for i := range valid {
		if entries[i] != nil {
			result.Entries = append(result.Entries, *entries[i])
			if fresh[i] {
				result.Downloaded = append(result.Downloaded, entries[i].ID)
			}
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
		}
	}
}
