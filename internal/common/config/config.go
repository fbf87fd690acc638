package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/configtypes"
	"github.com/purgeline/purged/internal/common/yamlutil"
)

// Load reads, validates and applies defaults to the daemon configuration.
// The returned config is immutable for the process lifetime.
func Load(path string, logger *zap.Logger) (*configtypes.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg configtypes.Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("path", path),
		zap.String("zone_id", cfg.Cloudflare.ZoneID),
		zap.Bool("enabled", cfg.Cloudflare.IsEnabled()),
		zap.Bool("background", cfg.Purge.IsBackground()),
		zap.Int("batch_size", cfg.Purge.BatchSize),
		zap.Int("dependency_rules", len(cfg.Purge.Dependencies)))

	return &cfg, nil
}

func applyDefaults(cfg *configtypes.Config) {
	if cfg.Cloudflare.APIBaseURL == "" {
		cfg.Cloudflare.APIBaseURL = "https://api.cloudflare.com/client/v4"
	}

	if cfg.Purge.BatchSize == 0 {
		cfg.Purge.BatchSize = configtypes.CloudflareMaxFilesPerCall
	}
	if cfg.Purge.MaxRetries == 0 {
		cfg.Purge.MaxRetries = 3
	}
	if cfg.Purge.RetryBaseDelay == 0 {
		cfg.Purge.RetryBaseDelay = configtypes.Duration(500 * time.Millisecond)
	}
	if cfg.Purge.RequestTimeout == 0 {
		cfg.Purge.RequestTimeout = configtypes.Duration(30 * time.Second)
	}

	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = configtypes.QueueBackendMemory
	}
	if cfg.Queue.MaxSize == 0 {
		cfg.Queue.MaxSize = 10000
	}
	if cfg.Queue.TickInterval == 0 {
		cfg.Queue.TickInterval = configtypes.Duration(time.Second)
	}

	if cfg.API.RequestTimeout == 0 {
		cfg.API.RequestTimeout = configtypes.Duration(10 * time.Second)
	}
	if cfg.API.DedupWindow == 0 {
		cfg.API.DedupWindow = configtypes.Duration(10 * time.Second)
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "purged"
	}

	// Enable console logging when both outputs are disabled
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}
}

func validate(cfg *configtypes.Config) error {
	if cfg.Cloudflare.IsEnabled() {
		if cfg.Cloudflare.APIToken == "" {
			return fmt.Errorf("cloudflare.api_token is required when purging is enabled")
		}
		if cfg.Cloudflare.ZoneID == "" {
			return fmt.Errorf("cloudflare.zone_id is required when purging is enabled")
		}
	}

	if cfg.Purge.BatchSize < 1 || cfg.Purge.BatchSize > configtypes.CloudflareMaxFilesPerCall {
		return fmt.Errorf("purge.batch_size must be between 1 and %d (Cloudflare per-call limit), got %d",
			configtypes.CloudflareMaxFilesPerCall, cfg.Purge.BatchSize)
	}

	if cfg.Purge.SiteURL != "" {
		u, err := url.Parse(cfg.Purge.SiteURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("purge.site_url must be an absolute URL, got %q", cfg.Purge.SiteURL)
		}
	}

	for entityType, paths := range cfg.Purge.Dependencies {
		if entityType == "" {
			return fmt.Errorf("purge.dependencies contains an empty entity type key")
		}
		for _, p := range paths {
			if p == "" {
				return fmt.Errorf("purge.dependencies[%s] contains an empty path", entityType)
			}
		}
	}

	switch cfg.Queue.Backend {
	case configtypes.QueueBackendMemory:
	case configtypes.QueueBackendRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when queue.backend is %q", configtypes.QueueBackendRedis)
		}
	default:
		return fmt.Errorf("queue.backend must be %q or %q, got %q",
			configtypes.QueueBackendMemory, configtypes.QueueBackendRedis, cfg.Queue.Backend)
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if cfg.API.AuthKey == "" {
			return fmt.Errorf("api.auth_key is required when api.enabled is true")
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics.enabled is true")
		}
		if cfg.API.Enabled && cfg.Metrics.Listen == cfg.API.Listen {
			return fmt.Errorf("metrics.listen must differ from api.listen")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
		}
	}

	return nil
}
