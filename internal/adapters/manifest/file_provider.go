package manifest

import (
	"context"
	"fmt"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

// FileProvider reads the manifest document from a local file
type FileProvider struct {
	target

	path   string
	logger *zap.Logger
}

func NewFileProvider(path, deviceID string, logger *zap.Logger) *FileProvider {
	p := &FileProvider{
		path:   path,
		logger: logger.Named("manifest"),
	}
	p.SetDeviceID(deviceID)
	return p
}

func (p *FileProvider) Fetch(ctx context.Context) (*core.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := readDocument(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrManifestUnavailable, err)
	}
	m, err := Normalize(doc, p.DeviceID())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrManifestUnavailable, p.path, err)
	}
	m.Source = SourceFile

	p.logger.Debug("Loaded poster manifest",
		zap.String("file", p.path),
		zap.Int("records", len(m.Records)))
	return m, nil
}
