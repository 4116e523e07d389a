package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// startCleanupTask runs c.Cleanup every freq until the returned stop func is
// called. Stop is idempotent and waits for a running cleanup to finish.
func startCleanupTask(c cleaner, logger *zap.Logger, freq time.Duration) func() {
	if freq <= 0 {
		return func() {}
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(freq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Cleanup(context.Background()); err != nil {
					logger.Error("Failed to clean up ledger", zap.Error(err))
				}
			case <-stopCh:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-done
		})
	}
}
