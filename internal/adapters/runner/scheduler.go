package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// Syncer performs one full refresh
type Syncer interface {
	Run(ctx context.Context) (*core.SyncReport, error)
}

// Scheduler refreshes the poster cache immediately on start and then every
// interval. Runs never overlap.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *zap.Logger

	trigger chan struct{}
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(syncer Syncer, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("scheduler: interval must be positive")
	}
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger.Named("scheduler"),
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Start launches the sync loop in the background
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("Started poster sync scheduler", zap.Duration("interval", s.interval))
	return nil
}

// Trigger requests an extra run as soon as the current one finishes.
// Requests made while one is already pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the running sync and waits for the loop to exit
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.logger.Info("Stopped poster sync scheduler")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
			ticker.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.syncer.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("Poster sync failed", zap.Error(err))
	}
}
