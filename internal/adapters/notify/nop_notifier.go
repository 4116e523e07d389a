package notify

import (
	"context"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// NopNotifier logs problematic syncs instead of mailing them
type NopNotifier struct {
	logger *zap.Logger
}

func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) NotifySync(ctx context.Context, report *core.SyncReport, failures []core.DownloadFailure) error {
	n.logger.Debug("Sync notification suppressed, SMTP notifications disabled",
		zap.String("run_id", report.RunID),
		zap.Int("failed", report.Failed))
	return nil
}
