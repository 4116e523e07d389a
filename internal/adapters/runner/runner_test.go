package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

type fakeSyncer struct {
	runs     chan struct{}
	active   atomic.Int32
	overlaps atomic.Int32
	hold     time.Duration

	mu      sync.Mutex
	report  *core.SyncReport
	err     error
	entries []core.CacheEntry
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{runs: make(chan struct{}, 16), report: &core.SyncReport{}}
}

func (f *fakeSyncer) Run(ctx context.Context) (*core.SyncReport, error) {
	if f.active.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.active.Add(-1)

	if f.hold > 0 {
		select {
		case <-time.After(f.hold):
		case <-ctx.Done():
		}
	}
	select {
	case f.runs <- struct{}{}:
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, f.err
}

func (f *fakeSyncer) Lookup(id string) (string, bool) {
	for _, e := range f.entries {
		if e.ID == id {
			return e.Path, true
		}
	}
	return "", false
}

func (f *fakeSyncer) List() ([]core.CacheEntry, error) {
	return f.entries, nil
}

func waitRun(t *testing.T, f *fakeSyncer) {
	t.Helper()
	select {
	case <-f.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sync run")
	}
}

func TestSchedulerRunsImmediatelyAndOnTrigger(t *testing.T) {
	f := newFakeSyncer()
	s, err := NewScheduler(f, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() error = nil")
	}

	waitRun(t, f)
	s.Trigger()
	waitRun(t, f)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case <-f.runs:
		t.Error("run after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSchedulerTicksAndNeverOverlaps(t *testing.T) {
	f := newFakeSyncer()
	f.hold = 20 * time.Millisecond
	s, err := NewScheduler(f, 5*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		s.Trigger()
		waitRun(t, f)
	}
	s.Stop()

	if n := f.overlaps.Load(); n != 0 {
		t.Errorf("overlapping runs = %d, want 0", n)
	}
}

func TestSchedulerStopCancelsRun(t *testing.T) {
	f := newFakeSyncer()
	f.hold = time.Minute
	s, err := NewScheduler(f, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.Start()

	// give the first run a moment to start
	time.Sleep(20 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not cancel the running sync")
	}
}

func TestNewSchedulerRejectsZeroInterval(t *testing.T) {
	if _, err := NewScheduler(newFakeSyncer(), 0, zap.NewNop()); err == nil {
		t.Error("NewScheduler(0) error = nil")
	}
}

func TestCLIRunnerSync(t *testing.T) {
	f := newFakeSyncer()
	f.report = &core.SyncReport{DeviceID: "3", Source: "api", Records: 4, Entries: 4, Downloaded: 1}
	var out bytes.Buffer

	r := NewCLIRunner(f, CLIOptions{}, &out, zap.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, want := range []string{"Device: 3", "Cached: 4", "Downloaded: 1", "Failed: 0"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCLIRunnerSyncFailures(t *testing.T) {
	f := newFakeSyncer()
	f.report = &core.SyncReport{Failed: 2}
	r := NewCLIRunner(f, CLIOptions{}, &bytes.Buffer{}, zap.NewNop())
	if err := r.Start(); err == nil {
		t.Error("Start() error = nil, want failure count error")
	}

	f.report = &core.SyncReport{Err: "manifest unavailable"}
	f.err = core.ErrManifestUnavailable
	var out bytes.Buffer
	r = NewCLIRunner(f, CLIOptions{}, &out, zap.NewNop())
	if err := r.Start(); !errors.Is(err, core.ErrManifestUnavailable) {
		t.Errorf("Start() error = %v, want ErrManifestUnavailable", err)
	}
	if !strings.Contains(out.String(), "Error: manifest unavailable") {
		t.Errorf("output missing error line:\n%s", out.String())
	}
}

func TestCLIRunnerLookupAndList(t *testing.T) {
	f := newFakeSyncer()
	f.entries = []core.CacheEntry{{ID: "2", Path: "/c/2.png"}, {ID: "10", Path: "/c/10.jpg"}}

	var out bytes.Buffer
	if err := NewCLIRunner(f, CLIOptions{Lookup: "10"}, &out, zap.NewNop()).Start(); err != nil {
		t.Fatalf("lookup error = %v", err)
	}
	if out.String() != "/c/10.jpg\n" {
		t.Errorf("lookup output = %q", out.String())
	}

	err := NewCLIRunner(f, CLIOptions{Lookup: "99"}, &bytes.Buffer{}, zap.NewNop()).Start()
	if !errors.Is(err, ErrNotCached) {
		t.Errorf("lookup(99) error = %v, want ErrNotCached", err)
	}

	out.Reset()
	if err := NewCLIRunner(f, CLIOptions{List: true}, &out, zap.NewNop()).Start(); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if out.String() != "2\t/c/2.png\n10\t/c/10.jpg\n" {
		t.Errorf("list output = %q", out.String())
	}
	if len(f.runs) != 0 {
		t.Error("lookup or list triggered a sync")
	}
}
