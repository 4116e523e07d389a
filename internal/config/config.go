package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultPosterAPIURL is the poster list endpoint used when none is configured
const DefaultPosterAPIURL = "https://posterbridge.incandescentsolution.com/api/v1/eposter-list"

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath("/etc/eposter/")
	v.AddConfigPath("$HOME/.eposter")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// Load reads configuration from an explicit file path
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("EPOSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Poster API defaults
	v.SetDefault("api.poster_api_url", DefaultPosterAPIURL)
	v.SetDefault("api.poster_token", "")
	v.SetDefault("api.request_timeout", "10s")
	v.SetDefault("api.data_file", "./api_data.json")

	// Manifest defaults
	v.SetDefault("manifest.source", "api")
	v.SetDefault("manifest.file", "")

	// Display defaults
	v.SetDefault("display.device_id", "")

	// Cache defaults
	v.SetDefault("cache.dir", "./eposter_cache")
	v.SetDefault("cache.download_timeout", "15s")
	v.SetDefault("cache.max_parallel", 1)
	v.SetDefault("cache.max_image_bytes", 50*1024*1024)
	v.SetDefault("cache.max_pixels", 40_000_000)
	v.SetDefault("cache.stale_temp_age", "1h")
	v.SetDefault("cache.lock_timeout", "30s")
	v.SetDefault("cache.force_landscape", false)
	v.SetDefault("cache.allowed_hosts", []string{})

	// Sync defaults
	v.SetDefault("sync.interval", "30s")

	// Ledger defaults
	v.SetDefault("ledger.type", "memory")
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.retention", "168h")
	v.SetDefault("ledger.cleanup_frequency", "1h")
	v.SetDefault("ledger.sqlite_path", "./eposter_ledger.db")
	v.SetDefault("ledger.mysql_dsn", "user:password@tcp(localhost:3306)/eposter")

	// Notification defaults
	v.SetDefault("notify.smtp.enabled", false)
	v.SetDefault("notify.smtp.address", "localhost:25")
	v.SetDefault("notify.smtp.from", "eposter@localhost")
	v.SetDefault("notify.smtp.to", []string{})
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.subject_prefix", "[eposter]")
	v.SetDefault("notify.smtp.timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets an int64 value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration.
// Bare numbers are read as seconds, matching the kiosk's legacy config.json.
func (c *Config) GetDuration(key string) (time.Duration, error) {
	raw := strings.TrimSpace(c.GetString(key))
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}

// OnChange watches the loaded config file and calls fn after every change.
// It does nothing when no config file was read.
func (c *Config) OnChange(fn func()) bool {
	if c.v.ConfigFileUsed() == "" {
		return false
	}
	c.v.OnConfigChange(func(fsnotify.Event) {
		fn()
	})
	c.v.WatchConfig()
	return true
}
