package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

const (
	SourceAPI      = "api"
	SourceFallback = "data_file"
	SourceFile     = "file"

	maxDocumentBytes = 32 << 20
)

// APIProvider fetches the poster manifest from the upstream poster API and
// keeps the last good document on disk for offline starts.
type APIProvider struct {
	target

	endpoint string
	token    string
	timeout  time.Duration
	dataFile string
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
}

// NewAPIProvider creates a provider for the configured poster endpoint
func NewAPIProvider(cfg config.APIConfig, deviceID string, client *http.Client, logger *zap.Logger) *APIProvider {
	if client == nil {
		client = &http.Client{}
	}
	p := &APIProvider{
		endpoint: cfg.PosterURL,
		token:    cfg.Token,
		timeout:  cfg.RequestTimeout,
		dataFile: cfg.DataFile,
		client:   client,
		logger:   logger.Named("manifest"),
		now:      time.Now,
	}
	p.SetDeviceID(deviceID)
	return p
}

// Fetch returns the remote manifest, or the last persisted one when the API
// cannot be used
func (p *APIProvider) Fetch(ctx context.Context) (*core.Manifest, error) {
	deviceID := p.DeviceID()

	m, err := p.fetchRemote(ctx, deviceID)
	if err == nil {
		return m, nil
	}
	p.logger.Warn("Poster API unavailable, using saved data",
		zap.String("url", p.endpoint),
		zap.String("data_file", p.dataFile),
		zap.Error(err))

	doc, loadErr := readDocument(p.dataFile)
	if loadErr != nil {
		return nil, fmt.Errorf("%w: %w; saved data: %w", core.ErrManifestUnavailable, err, loadErr)
	}
	m, loadErr = Normalize(doc, deviceID)
	if loadErr != nil {
		return nil, fmt.Errorf("%w: %w; saved data: %w", core.ErrManifestUnavailable, err, loadErr)
	}
	m.Source = SourceFallback
	return m, nil
}

func (p *APIProvider) fetchRemote(ctx context.Context, deviceID string) (*core.Manifest, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid poster API URL: %w", err)
	}
	q := u.Query()
	q.Set("key", p.token)
	u.RawQuery = q.Encode()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poster API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return nil, err
	}

	now := p.now()
	stamp(doc, now)
	m, err := Normalize(doc, deviceID)
	if err != nil {
		return nil, err
	}
	if m.FetchedAt.IsZero() {
		m.FetchedAt = now
	}
	m.Source = SourceAPI

	if p.dataFile != "" {
		if err := writeDocument(p.dataFile, doc); err != nil {
			p.logger.Warn("Failed to save poster API data", zap.String("data_file", p.dataFile), zap.Error(err))
		} else {
			p.logger.Debug("Saved poster API data", zap.String("data_file", p.dataFile))
		}
	}

	p.logger.Info("Fetched poster manifest",
		zap.String("device_id", deviceID),
		zap.Int("records", len(m.Records)))
	return m, nil
}
