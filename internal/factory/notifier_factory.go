package factory

import (
	"fmt"

	"github.com/mikey/eposter/internal/adapters/notify"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// NotifierFactory creates operator notifiers based on configuration
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns the SMTP notifier when enabled, a no-op otherwise
func (f *NotifierFactory) CreateNotifier() (core.Notifier, error) {
	smtpCfg, err := f.cfg.GetSMTP()
	if err != nil {
		return nil, fmt.Errorf("invalid smtp configuration: %w", err)
	}
	if !smtpCfg.Enabled {
		return notify.NewNopNotifier(f.logger), nil
	}
	return notify.NewSMTPNotifier(smtpCfg, f.logger)
}
