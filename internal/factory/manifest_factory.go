package factory

import (
	"fmt"
	"net/http"

	"github.com/mikey/eposter/internal/adapters/manifest"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// DeviceTargeter is a provider whose screen can change at runtime
type DeviceTargeter interface {
	SetDeviceID(id string)
	DeviceID() string
}

// ManifestFactory creates manifest providers based on configuration
type ManifestFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewManifestFactory creates a new manifest factory
func NewManifestFactory(cfg *config.Config, logger *zap.Logger) *ManifestFactory {
	return &ManifestFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateManifestProvider creates the provider selected by manifest.source
func (f *ManifestFactory) CreateManifestProvider() (core.ManifestProvider, error) {
	manifestCfg := f.cfg.GetManifest()
	deviceID := f.cfg.GetDisplay().DeviceID
	if deviceID == "" {
		f.logger.Warn("display.device_id is not set, only booking posters will be cached")
	}

	switch manifestCfg.Source {
	case "api":
		apiCfg, err := f.cfg.GetAPI()
		if err != nil {
			return nil, fmt.Errorf("invalid api configuration: %w", err)
		}
		return manifest.NewAPIProvider(apiCfg, deviceID, &http.Client{}, f.logger), nil
	case "file":
		if manifestCfg.File == "" {
			return nil, fmt.Errorf("manifest.file is required for the file source")
		}
		return manifest.NewFileProvider(manifestCfg.File, deviceID, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported manifest source: %s", manifestCfg.Source)
	}
}
