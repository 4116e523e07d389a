package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/utils"
	"go.uber.org/zap"
)

// maxMessageBytes bounds stored failure messages
const maxMessageBytes = 1024

// MemoryLedger is an in-memory implementation of the SyncLedger interface
type MemoryLedger struct {
	runs      []core.SyncReport
	failures  map[string]*core.LedgerFailure
	mu        sync.RWMutex
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time
	stop      func()
}

// NewMemoryLedger creates a new in-memory ledger. A zero cleanupFreq
// disables the background cleanup task.
func NewMemoryLedger(logger *zap.Logger, retention, cleanupFreq time.Duration) *MemoryLedger {
	l := &MemoryLedger{
		failures:  make(map[string]*core.LedgerFailure),
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
	l.stop = startCleanupTask(l, logger, cleanupFreq)
	return l
}

// RecordRun stores the summary of a run
func (l *MemoryLedger) RecordRun(ctx context.Context, report *core.SyncReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.runs = append(l.runs, *report)
	return nil
}

// LastRun returns the most recently started run
func (l *MemoryLedger) LastRun(ctx context.Context) (*core.SyncReport, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.runs) == 0 {
		return nil, nil
	}
	last := l.runs[0]
	for _, r := range l.runs[1:] {
		if !r.StartedAt.Before(last.StartedAt) {
			last = r
		}
	}
	return &last, nil
}

// RecordFailure upserts a failure and bumps its attempt counter
func (l *MemoryLedger) RecordFailure(ctx context.Context, failure core.DownloadFailure) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.failures[failure.ID]
	if !ok {
		entry = &core.LedgerFailure{PosterID: failure.ID}
		l.failures[failure.ID] = entry
	}
	entry.SourceURL = failure.SourceURL
	entry.Reason = string(failure.Reason)
	entry.Message = failureMessage(failure)
	entry.Attempts++
	entry.LastAttempt = failure.At
	return nil
}

// ClearFailures removes failures for posters that are now cached
func (l *MemoryLedger) ClearFailures(ctx context.Context, posterIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range posterIDs {
		delete(l.failures, id)
	}
	return nil
}

// RetainFailures drops failures for posters outside posterIDs
func (l *MemoryLedger) RetainFailures(ctx context.Context, posterIDs []string) error {
	keep := make(map[string]struct{}, len(posterIDs))
	for _, id := range posterIDs {
		keep[id] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for id := range l.failures {
		if _, ok := keep[id]; !ok {
			delete(l.failures, id)
		}
	}
	return nil
}

// Failures lists the current failures ordered by poster id
func (l *MemoryLedger) Failures(ctx context.Context) ([]core.LedgerFailure, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]core.LedgerFailure, 0, len(l.failures))
	for _, f := range l.failures {
		out = append(out, *f)
	}
	sortFailures(out)
	return out, nil
}

// Cleanup removes runs older than the retention window
func (l *MemoryLedger) Cleanup(ctx context.Context) error {
	if l.retention <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.retention)
	kept := l.runs[:0]
	for _, r := range l.runs {
		if r.StartedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	expired := len(l.runs) - len(kept)
	l.runs = kept

	l.logger.Debug("Cleaned up expired sync runs", zap.Int("expired_count", expired))
	return nil
}

// Stop stops the background cleanup task
func (l *MemoryLedger) Stop() error {
	l.stop()
	return nil
}

func sortFailures(failures []core.LedgerFailure) {
	sort.Slice(failures, func(i, j int) bool {
		return core.LessID(failures[i].PosterID, failures[j].PosterID)
	})
}

func failureMessage(f core.DownloadFailure) string {
	if f.Err == nil {
		return ""
	}
	return utils.ProcessMessage(f.Err.Error(), maxMessageBytes)
}
