package configtypes

import (
	"fmt"
	"time"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log output formats
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Queue backends
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// CloudflareMaxFilesPerCall is the hard per-call ceiling enforced by the
// Cloudflare purge API. Configured batch sizes above this are rejected.
const CloudflareMaxFilesPerCall = 30

// Config is the root daemon configuration
type Config struct {
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Purge      PurgeConfig      `yaml:"purge"`
	Queue      QueueConfig      `yaml:"queue"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// CloudflareConfig holds API credentials and endpoint settings
type CloudflareConfig struct {
	APIToken   string `yaml:"api_token"`
	ZoneID     string `yaml:"zone_id"`
	APIBaseURL string `yaml:"api_base_url"`
	Enabled    *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether purging is enabled (default true)
func (c *CloudflareConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PurgeConfig controls resolution, batching and delivery behavior
type PurgeConfig struct {
	SiteURL        string              `yaml:"site_url"`
	BatchSize      int                 `yaml:"batch_size"`
	Background     *bool               `yaml:"background,omitempty"`
	Delay          Duration            `yaml:"delay"`
	MaxRetries     int                 `yaml:"max_retries"`
	RetryBaseDelay Duration            `yaml:"retry_base_delay"`
	RequestTimeout Duration            `yaml:"request_timeout"`
	Dependencies   map[string][]string `yaml:"dependencies,omitempty"`
}

// IsBackground reports whether background delivery is enabled (default true)
func (c *PurgeConfig) IsBackground() bool {
	return c.Background == nil || *c.Background
}

// QueueConfig controls the pending-purge queue
type QueueConfig struct {
	Backend      string   `yaml:"backend"`
	MaxSize      int      `yaml:"max_size"`
	TickInterval Duration `yaml:"tick_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig controls the internal HTTP API server
type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Listen         string   `yaml:"listen"`
	AuthKey        string   `yaml:"auth_key"`
	RequestTimeout Duration `yaml:"request_timeout"`
	DedupWindow    Duration `yaml:"dedup_window"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level,omitempty"`
	Format  string `yaml:"format,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Level    string         `yaml:"level,omitempty"`
	Format   string         `yaml:"format,omitempty"`
	Path     string         `yaml:"path,omitempty"`
	Rotation RotationConfig `yaml:"rotation,omitempty"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // megabytes
	MaxAge     int  `yaml:"max_age"`     // days
	MaxBackups int  `yaml:"max_backups"` // files
	Compress   bool `yaml:"compress"`
}

// Duration wraps time.Duration with YAML string parsing ("30s", "5m")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ToDuration converts configtypes.Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
