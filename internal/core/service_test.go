package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type fakeProvider struct {
	manifest *Manifest
	err      error
}

func (p *fakeProvider) Fetch(ctx context.Context) (*Manifest, error) {
	return p.manifest, p.err
}

type fakeCache struct {
	result  *SyncResult
	err     error
	calls   int
	records []PosterRecord
}

func (c *fakeCache) Sync(ctx context.Context, records []PosterRecord) (*SyncResult, error) {
	c.calls++
	c.records = records
	return c.result, c.err
}

func (c *fakeCache) Lookup(id string) (string, bool) { return "", false }

func (c *fakeCache) List() ([]CacheEntry, error) { return nil, nil }

type fakeLedger struct {
	runs     []*SyncReport
	failures map[string]DownloadFailure
	attempts map[string]int
	retained []string
	cleared  []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{failures: map[string]DownloadFailure{}, attempts: map[string]int{}}
}

func (l *fakeLedger) RecordRun(ctx context.Context, report *SyncReport) error {
	l.runs = append(l.runs, report)
	return nil
}

func (l *fakeLedger) LastRun(ctx context.Context) (*SyncReport, error) {
	if len(l.runs) == 0 {
		return nil, nil
	}
	return l.runs[len(l.runs)-1], nil
}

func (l *fakeLedger) RecordFailure(ctx context.Context, f DownloadFailure) error {
	l.failures[f.ID] = f
	l.attempts[f.ID]++
	return nil
}

func (l *fakeLedger) ClearFailures(ctx context.Context, ids []string) error {
	l.cleared = append(l.cleared, ids...)
	for _, id := range ids {
		delete(l.failures, id)
		delete(l.attempts, id)
	}
	return nil
}

func (l *fakeLedger) RetainFailures(ctx context.Context, ids []string) error {
	l.retained = ids
	keep := map[string]bool{}
	for _, id := range ids {
		keep[id] = true
	}
	for id := range l.failures {
		if !keep[id] {
			delete(l.failures, id)
			delete(l.attempts, id)
		}
	}
	return nil
}

func (l *fakeLedger) Failures(ctx context.Context) ([]LedgerFailure, error) {
	var out []LedgerFailure
	for _, f := range l.failures {
		out = append(out, LedgerFailure{PosterID: f.ID, Reason: string(f.Reason), Attempts: l.attempts[f.ID]})
	}
	return out, nil
}

func (l *fakeLedger) Cleanup(ctx context.Context) error { return nil }

type fakeNotifier struct {
	reports  []*SyncReport
	failures [][]DownloadFailure
}

func (n *fakeNotifier) NotifySync(ctx context.Context, report *SyncReport, failures []DownloadFailure) error {
	n.reports = append(n.reports, report)
	n.failures = append(n.failures, failures)
	return nil
}

func TestRunManifestUnavailableKeepsCache(t *testing.T) {
	cache := &fakeCache{}
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	s := NewSyncService(&fakeProvider{err: ErrManifestUnavailable}, cache, ledger, notifier, zap.NewNop())

	report, err := s.Run(context.Background())
	if !errors.Is(err, ErrManifestUnavailable) {
		t.Fatalf("Run() error = %v, want ErrManifestUnavailable", err)
	}
	if cache.calls != 0 {
		t.Errorf("cache synced %d times after failed fetch", cache.calls)
	}
	if report.Err == "" || report.RunID == "" {
		t.Errorf("report = %+v, want run id and error", report)
	}
	if len(ledger.runs) != 1 {
		t.Errorf("recorded %d runs, want 1", len(ledger.runs))
	}
	if len(notifier.reports) != 0 {
		t.Error("notified for an unavailable manifest")
	}
}

func TestRunCacheErrorNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	provider := &fakeProvider{manifest: &Manifest{DeviceID: "2", Source: "api"}}
	s := NewSyncService(provider, &fakeCache{err: ErrFilesystem}, newFakeLedger(), notifier, zap.NewNop())

	if _, err := s.Run(context.Background()); !errors.Is(err, ErrFilesystem) {
		t.Fatalf("Run() error = %v, want ErrFilesystem", err)
	}
	if len(notifier.reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.reports))
	}
	if got := notifier.reports[0].DeviceID; got != "2" {
		t.Errorf("notified device = %q, want 2", got)
	}
}

func TestRunSuccessSkipsNotification(t *testing.T) {
	records := []PosterRecord{{ID: "1", SourceURL: "http://h/1.png"}}
	cache := &fakeCache{result: &SyncResult{
		Entries:    []CacheEntry{{ID: "1", Path: "/c/1.png"}},
		Downloaded: []string{"1"},
	}}
	notifier := &fakeNotifier{}
	ledger := newFakeLedger()
	provider := &fakeProvider{manifest: &Manifest{Records: records, DeviceID: "1", Source: "api"}}
	s := NewSyncService(provider, cache, ledger, notifier, zap.NewNop())

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := &SyncReport{
		RunID:      report.RunID,
		DeviceID:   "1",
		Source:     "api",
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Records:    1,
		Entries:    1,
		Downloaded: 1,
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(records, cache.records); diff != "" {
		t.Errorf("records passed to cache (-want +got):\n%s", diff)
	}
	if len(notifier.reports) != 0 {
		t.Error("notified for a clean run")
	}
	last, _ := s.LastRun(context.Background())
	if last != report {
		t.Error("LastRun() did not return the recorded report")
	}
}

func TestRunFailureBookkeeping(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failures["gone"] = DownloadFailure{ID: "gone"}
	ledger.failures["1"] = DownloadFailure{ID: "1"}

	failure := DownloadFailure{ID: "2", SourceURL: "http://h/2.png", Reason: FailureTimeout}
	cache := &fakeCache{result: &SyncResult{
		Entries:  []CacheEntry{{ID: "1", Path: "/c/1.png"}},
		Failures: []DownloadFailure{failure},
	}}
	notifier := &fakeNotifier{}
	provider := &fakeProvider{manifest: &Manifest{Records: []PosterRecord{
		{ID: " 1 ", SourceURL: "http://h/1.png"},
		{ID: "2", SourceURL: "http://h/2.png"},
	}}}
	s := NewSyncService(provider, cache, ledger, notifier, zap.NewNop())

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ledger.retained); diff != "" {
		t.Errorf("retained ids (-want +got):\n%s", diff)
	}

	got, _ := s.Failures(context.Background())
	if len(got) != 1 || got[0].PosterID != "2" || got[0].Reason != "timeout" {
		t.Errorf("Failures() = %+v, want only poster 2", got)
	}

	if len(notifier.reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.reports))
	}
	if diff := cmp.Diff([]DownloadFailure{failure}, notifier.failures[0]); diff != "" {
		t.Errorf("notified failures (-want +got):\n%s", diff)
	}
}

func TestRunRepeatedFailureNotifiesOnce(t *testing.T) {
	failure := DownloadFailure{ID: "7", SourceURL: "http://h/7.png", Reason: FailureHTTPStatus}
	cache := &fakeCache{result: &SyncResult{Failures: []DownloadFailure{failure}}}
	notifier := &fakeNotifier{}
	provider := &fakeProvider{manifest: &Manifest{Records: []PosterRecord{{ID: "7", SourceURL: "http://h/7.png"}}}}
	s := NewSyncService(provider, cache, newFakeLedger(), notifier, zap.NewNop())

	for i := 0; i < 5; i++ {
		if _, err := s.Run(context.Background()); err != nil {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
	}
	if len(notifier.reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.reports))
	}

	// once the poster is cached the failure is forgotten, so a relapse is news
	cache.result = &SyncResult{Entries: []CacheEntry{{ID: "7", Path: "/c/7.png"}}}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	cache.result = &SyncResult{Failures: []DownloadFailure{failure}}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(notifier.reports) != 2 {
		t.Errorf("notifications = %d, want 2 after the failure came back", len(notifier.reports))
	}
}

func TestRunRepeatedErrorNotifiesOnce(t *testing.T) {
	cache := &fakeCache{err: ErrFilesystem}
	notifier := &fakeNotifier{}
	s := NewSyncService(&fakeProvider{manifest: &Manifest{}}, cache, newFakeLedger(), notifier, zap.NewNop())

	for i := 0; i < 3; i++ {
		s.Run(context.Background())
	}
	if len(notifier.reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.reports))
	}

	cache.err = ErrSyncLocked
	s.Run(context.Background())
	if len(notifier.reports) != 2 {
		t.Errorf("notifications = %d, want 2 after the error changed", len(notifier.reports))
	}
}

func TestRunCancelledDoesNotNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier := &fakeNotifier{}
	s := NewSyncService(&fakeProvider{manifest: &Manifest{}}, &fakeCache{err: context.Canceled}, newFakeLedger(), notifier, zap.NewNop())

	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(notifier.reports) != 0 {
		t.Errorf("notifications = %d, want 0 for a cancelled run", len(notifier.reports))
	}
}

func TestLessID(t *testing.T) {
	entries := []CacheEntry{{ID: "b"}, {ID: "10"}, {ID: "a"}, {ID: "2"}}
	SortEntries(entries)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"2", "10", "a", "b"}, ids); diff != "" {
		t.Errorf("sorted ids (-want +got):\n%s", diff)
	}
}

func TestClassifyDownloadError(t *testing.T) {
	cases := []struct {
		err  error
		want FailureReason
	}{
		{context.DeadlineExceeded, FailureTimeout},
		{&HTTPStatusError{StatusCode: 404}, FailureHTTPStatus},
		{ErrDecode, FailureDecode},
		{ErrTooLarge, FailureTooLarge},
		{ErrWrite, FailureWrite},
		{errors.New("connection reset by peer"), FailureTransport},
	}
	for _, tc := range cases {
		if got := ClassifyDownloadError(tc.err); got != tc.want {
			t.Errorf("ClassifyDownloadError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
