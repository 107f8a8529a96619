// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Analyze  AnalyzeConfig  `mapstructure:"analyze" yaml:"analyze"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PlatformConfig holds the connection settings for the remote analysis
// pipeline.
type PlatformConfig struct {
	// BaseURL is the root of the pipeline API, e.g. https://api.argus.example.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// APIKey is sent as a bearer token when non-empty. Typically supplied
	// via ARGUS_PLATFORM_API_KEY rather than the config file.
	APIKey string `mapstructure:"api_key" yaml:"-"`

	// RequestTimeout bounds non-streaming calls (resume, scan trigger).
	// Streaming reads are bounded only by the caller's context.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// RateLimit is the sustained client-side request rate in requests per
	// second; RateBurst is the burst allowance.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// StorageConfig configures the durable triage snapshot store.
type StorageConfig struct {
	// Path is the SQLite database file. Empty means <data dir>/console.db.
	Path string `mapstructure:"path" yaml:"path"`

	// CompressionLevel is the zstd level (1 fastest .. 4 best) applied to
	// snapshot payloads.
	CompressionLevel int `mapstructure:"compression_level" yaml:"compression_level"`
}

// ResolvePath returns the effective snapshot database path, expanding the
// default under the user's home directory when unset.
func (s StorageConfig) ResolvePath() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "console.db"), nil
}

// DefaultDataDir returns the per-user Argus data directory.
func DefaultDataDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".argus"), nil
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// AnalyzeConfig tunes analysis submission behavior.
type AnalyzeConfig struct {
	// FollowQuiet is how long --follow waits after the last appended line
	// before resubmitting the accumulated input.
	FollowQuiet time.Duration `mapstructure:"follow_quiet" yaml:"follow_quiet"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "argus")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Platform --
	v.SetDefault("platform.base_url", "https://api.argus.dev")
	v.SetDefault("platform.request_timeout", "60s")
	v.SetDefault("platform.rate_limit", 5.0)
	v.SetDefault("platform.rate_burst", 10)

	// -- Storage --
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.compression_level", 3)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9477")

	// -- Analyze --
	v.SetDefault("analyze.follow_quiet", "2s")
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("platform.api_key", "ARGUS_PLATFORM_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is a required configuration field")
	}
	if c.Platform.RequestTimeout <= 0 {
		return fmt.Errorf("platform.request_timeout must be a positive duration")
	}
	if c.Platform.RateLimit <= 0 {
		return fmt.Errorf("platform.rate_limit must be positive")
	}
	if c.Platform.RateBurst <= 0 {
		return fmt.Errorf("platform.rate_burst must be a positive integer")
	}
	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("storage.compression_level must be between 1 and 4")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}
	if c.Analyze.FollowQuiet <= 0 {
		return fmt.Errorf("analyze.follow_quiet must be a positive duration")
	}
	return nil
}
