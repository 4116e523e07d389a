package config

import (
	"fmt"
	"time"
)

// APIConfig represents the configuration for the poster API
type APIConfig struct {
	PosterURL      string
	Token          string
	RequestTimeout time.Duration
	DataFile       string
}

// ManifestConfig selects where poster manifests come from
type ManifestConfig struct {
	Source string
	File   string
}

// DisplayConfig represents the device identity
type DisplayConfig struct {
	DeviceID string
}

// CacheConfig represents the configuration for the image cache
type CacheConfig struct {
	Dir             string
	DownloadTimeout time.Duration
	MaxParallel     int
	MaxImageBytes   int64
	MaxPixels       int64
	StaleTempAge    time.Duration
	LockTimeout     time.Duration
	ForceLandscape  bool
	AllowedHosts    []string
}

// SyncConfig represents the periodic sync configuration
type SyncConfig struct {
	Interval time.Duration
}

// LedgerConfig represents the configuration for the sync ledger
type LedgerConfig struct {
	Type             string
	Enabled          bool
	Retention        time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// SMTPConfig represents the configuration for operator mail notifications
type SMTPConfig struct {
	Enabled       bool
	Address       string
	From          string
	To            []string
	Username      string
	Password      string
	SubjectPrefix string
	Timeout       time.Duration
}

// GetAPI returns the poster API configuration
func (c *Config) GetAPI() (APIConfig, error) {
	timeout, err := c.GetDuration("api.request_timeout")
	if err != nil {
		return APIConfig{}, err
	}
	return APIConfig{
		PosterURL:      c.GetString("api.poster_api_url"),
		Token:          c.GetString("api.poster_token"),
		RequestTimeout: timeout,
		DataFile:       c.GetString("api.data_file"),
	}, nil
}

// GetManifest returns the manifest source configuration
func (c *Config) GetManifest() ManifestConfig {
	file := c.GetString("manifest.file")
	if file == "" {
		file = c.GetString("api.data_file")
	}
	return ManifestConfig{
		Source: c.GetString("manifest.source"),
		File:   file,
	}
}

// GetDisplay returns the display configuration
func (c *Config) GetDisplay() DisplayConfig {
	return DisplayConfig{
		DeviceID: c.GetString("display.device_id"),
	}
}

// GetCache returns the image cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	downloadTimeout, err := c.GetDuration("cache.download_timeout")
	if err != nil {
		return CacheConfig{}, err
	}
	staleAge, err := c.GetDuration("cache.stale_temp_age")
	if err != nil {
		return CacheConfig{}, err
	}
	lockTimeout, err := c.GetDuration("cache.lock_timeout")
	if err != nil {
		return CacheConfig{}, err
	}
	if downloadTimeout <= 0 {
		return CacheConfig{}, fmt.Errorf("cache.download_timeout must be positive")
	}
	return CacheConfig{
		Dir:             c.GetString("cache.dir"),
		DownloadTimeout: downloadTimeout,
		MaxParallel:     c.GetInt("cache.max_parallel"),
		MaxImageBytes:   c.GetInt64("cache.max_image_bytes"),
		MaxPixels:       c.GetInt64("cache.max_pixels"),
		StaleTempAge:    staleAge,
		LockTimeout:     lockTimeout,
		ForceLandscape:  c.GetBool("cache.force_landscape"),
		AllowedHosts:    c.GetStringSlice("cache.allowed_hosts"),
	}, nil
}

// GetSync returns the periodic sync configuration
func (c *Config) GetSync() (SyncConfig, error) {
	interval, err := c.GetDuration("sync.interval")
	if err != nil {
		return SyncConfig{}, err
	}
	if interval <= 0 {
		return SyncConfig{}, fmt.Errorf("sync.interval must be positive")
	}
	return SyncConfig{Interval: interval}, nil
}

// GetLedger returns the sync ledger configuration
func (c *Config) GetLedger() (LedgerConfig, error) {
	retention, err := c.GetDuration("ledger.retention")
	if err != nil {
		return LedgerConfig{}, err
	}
	cleanupFreq, err := c.GetDuration("ledger.cleanup_frequency")
	if err != nil {
		return LedgerConfig{}, err
	}
	return LedgerConfig{
		Type:             c.GetString("ledger.type"),
		Enabled:          c.GetBool("ledger.enabled"),
		Retention:        retention,
		CleanupFrequency: cleanupFreq,
		SQLitePath:       c.GetString("ledger.sqlite_path"),
		MySQLDSN:         c.GetString("ledger.mysql_dsn"),
	}, nil
}

// GetSMTP returns the mail notification configuration
func (c *Config) GetSMTP() (SMTPConfig, error) {
	timeout, err := c.GetDuration("notify.smtp.timeout")
	if err != nil {
		return SMTPConfig{}, err
	}
	return SMTPConfig{
		Enabled:       c.GetBool("notify.smtp.enabled"),
		Address:       c.GetString("notify.smtp.address"),
		From:          c.GetString("notify.smtp.from"),
		To:            c.GetStringSlice("notify.smtp.to"),
		Username:      c.GetString("notify.smtp.username"),
		Password:      c.GetString("notify.smtp.password"),
		SubjectPrefix: c.GetString("notify.smtp.subject_prefix"),
		Timeout:       timeout,
	}, nil
}
