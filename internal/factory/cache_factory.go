package factory

import (
	"fmt"
	"net/http"

	"github.com/mikey/eposter/internal/adapters/imagecache"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/whitelist"
	"go.uber.org/zap"
)

// CacheFactory creates the poster image cache based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePosterCache creates the image cache synchronizer
func (f *CacheFactory) CreatePosterCache() (core.PosterCache, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return nil, fmt.Errorf("invalid cache configuration: %w", err)
	}

	hosts := whitelist.NewChecker(cacheCfg.AllowedHosts, f.logger)
	// per-download deadlines come from the request context
	client := &http.Client{}

	cache, err := imagecache.New(imagecache.Options{
		Dir:             cacheCfg.Dir,
		DownloadTimeout: cacheCfg.DownloadTimeout,
		MaxParallel:     cacheCfg.MaxParallel,
		MaxImageBytes:   cacheCfg.MaxImageBytes,
		MaxPixels:       cacheCfg.MaxPixels,
		StaleTempAge:    cacheCfg.StaleTempAge,
		LockTimeout:     cacheCfg.LockTimeout,
		ForceLandscape:  cacheCfg.ForceLandscape,
	}, client, hosts, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized poster cache",
		zap.String("dir", cache.Dir()),
		zap.Int("max_parallel", cacheCfg.MaxParallel),
		zap.Duration("download_timeout", cacheCfg.DownloadTimeout))
	return cache, nil
}
