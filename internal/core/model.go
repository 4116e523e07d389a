package core

import (
	"sort"
	"strconv"
	"time"
)

// PosterRecord is one poster from a manifest, after upstream field names
// have been normalized.
type PosterRecord struct {
	ID        string
	SourceURL string
	Title     string
	StartAt   time.Time
	EndAt     time.Time
	// Origin tells where the record came from ("screen" or "booking")
	Origin string
}

// Manifest is the list of posters a device should currently hold
type Manifest struct {
	Records        []PosterRecord
	DeviceID       string
	DisplayMinutes int
	FetchedAt      time.Time
	Source         string
}

// CacheEntry is a poster image installed in the cache directory
type CacheEntry struct {
	ID   string
	Path string
}

// SkipReason explains why a record took no part in a sync
type SkipReason string

const (
	SkipMissingID      SkipReason = "missing_id"
	SkipMissingURL     SkipReason = "missing_url"
	SkipInvalidID      SkipReason = "invalid_id"
	SkipHostNotAllowed SkipReason = "host_not_allowed"
	SkipDuplicateID    SkipReason = "duplicate_id"
)

// SkippedRecord is a manifest record ignored by the cache
type SkippedRecord struct {
	Index  int
	ID     string
	Reason SkipReason
}

// DownloadFailure is a record whose image could not be installed this time.
// It is retried by the next sync.
type DownloadFailure struct {
	ID        string
	SourceURL string
	Reason    FailureReason
	Err       error
	At        time.Time
}

// SyncResult is the outcome of one cache synchronization
type SyncResult struct {
	Entries    []CacheEntry
	Downloaded []string
	Deleted    []string
	Skipped    []SkippedRecord
	Failures   []DownloadFailure
	// CleanupErr aggregates per-file deletion errors; it never fails the sync.
	CleanupErr error
}

// SyncReport summarizes one service run for the ledger and notifications
type SyncReport struct {
	RunID      string
	DeviceID   string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	Entries    int
	Downloaded int
	Deleted    int
	Skipped    int
	Failed     int
	Err        string
}

// Succeeded reports whether the run completed without failures
func (r *SyncReport) Succeeded() bool {
	return r.Err == "" && r.Failed == 0
}

// LedgerFailure is the persisted view of repeated download failures for a poster
type LedgerFailure struct {
	PosterID    string
	SourceURL   string
	Reason      string
	Message     string
	Attempts    int
	LastAttempt time.Time
}

// SortEntries orders entries by id, numerically when both ids are integers
func SortEntries(entries []CacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return LessID(entries[i].ID, entries[j].ID)
	})
}

// LessID compares poster ids, numerically when both are integers
func LessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}
