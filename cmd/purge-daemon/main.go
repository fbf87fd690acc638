package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/config"
	"github.com/purgeline/purged/internal/common/configtypes"
	"github.com/purgeline/purged/internal/common/logger"
	"github.com/purgeline/purged/internal/common/metricsserver"
	"github.com/purgeline/purged/internal/common/redis"
	"github.com/purgeline/purged/internal/purge/api"
	"github.com/purgeline/purged/internal/purge/cloudflare"
	"github.com/purgeline/purged/internal/purge/dispatcher"
	"github.com/purgeline/purged/internal/purge/metrics"
	"github.com/purgeline/purged/internal/purge/queue"
	"github.com/purgeline/purged/internal/purge/resolver"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("c", "configs/example/purged.yaml", "path to purge daemon configuration file")
	flag.Parse()

	// Create initial logger for startup
	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	initialLogger.Info("Starting Purge Daemon",
		zap.String("config_path", *configPath))

	// Load daemon configuration
	cfg, err := config.Load(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load config", zap.Error(err))
	}

	// Reconfigure logger based on config settings (uses INFO level during startup if configured level is higher)
	dynamicLogger, err := logger.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Sync()

	zapLogger := dynamicLogger.With(zap.String("zone_id", cfg.Cloudflare.ZoneID))

	// Initialize Redis client when the queue runs on it
	var redisClient *redis.Client
	if cfg.Queue.Backend == configtypes.QueueBackendRedis {
		redisClient, err = redis.NewClient(&cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// Metrics collector
	var collector *metrics.MetricsCollector
	if cfg.Metrics.Enabled {
		collector = metrics.NewMetricsCollector(cfg.Metrics.Namespace, zapLogger)
	}

	// CDN API client
	var cfClient *cloudflare.Client
	if cfg.Cloudflare.IsEnabled() {
		clientOpts := cloudflare.Options{
			APIToken:       cfg.Cloudflare.APIToken,
			ZoneID:         cfg.Cloudflare.ZoneID,
			BaseURL:        cfg.Cloudflare.APIBaseURL,
			RequestTimeout: cfg.Purge.RequestTimeout.ToDuration(),
			MaxRetries:     cfg.Purge.MaxRetries,
			RetryBaseDelay: cfg.Purge.RetryBaseDelay.ToDuration(),
		}
		if collector != nil {
			clientOpts.OnRetry = collector.RecordRetry
		}
		cfClient, err = cloudflare.NewClient(clientOpts, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create CDN client", zap.Error(err))
		}
	} else {
		zapLogger.Warn("Purging is disabled, CDN calls will be skipped")
	}

	// Resolution pipeline
	registry := resolver.NewRegistry(zapLogger)
	urlResolver := resolver.NewResolver(registry, cfg.Purge.Dependencies, cfg.Purge.SiteURL, zapLogger)

	// Pending-purge queue
	var pendingQueue queue.Queue
	if cfg.Purge.IsBackground() {
		switch cfg.Queue.Backend {
		case configtypes.QueueBackendRedis:
			pendingQueue = queue.NewRedisQueue(redisClient, cfg.Cloudflare.ZoneID, zapLogger)
		default:
			pendingQueue = queue.NewMemoryQueue(cfg.Queue.MaxSize)
		}
	}

	var cdnClient dispatcher.Client
	if cfClient != nil {
		cdnClient = cfClient
	}

	purgeDispatcher, err := dispatcher.New(dispatcher.Options{
		Enabled:    cfg.Cloudflare.IsEnabled(),
		Background: cfg.Purge.IsBackground(),
		Delay:      cfg.Purge.Delay.ToDuration(),
		BatchSize:  cfg.Purge.BatchSize,
	}, cdnClient, urlResolver, pendingQueue, collector, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create dispatcher", zap.Error(err))
	}

	// Background delivery worker
	var worker *dispatcher.Worker
	if cfg.Purge.IsBackground() && cfg.Cloudflare.IsEnabled() {
		worker = dispatcher.NewWorker(purgeDispatcher, pendingQueue,
			cfg.Queue.TickInterval.ToDuration(), cfg.Queue.MaxSize, zapLogger)
		worker.Start()
	}

	// Metrics server
	var metricsServer *fasthttp.Server
	if collector != nil {
		metricsServer, err = metricsserver.StartMetricsServer(
			cfg.Metrics.Enabled,
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			collector,
			zapLogger,
		)
		if err != nil {
			zapLogger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	// Internal API server
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.AuthKey, zapLogger)
		handlers := api.NewPurgeHandlers(
			purgeDispatcher,
			registry,
			cfg.Cloudflare.IsEnabled(),
			cfg.Purge.IsBackground(),
			cfg.API.RequestTimeout.ToDuration(),
			cfg.API.DedupWindow.ToDuration(),
			zapLogger,
		)
		handlers.RegisterEndpoints(apiServer)

		go func() {
			if err := apiServer.Start(cfg.API.Listen); err != nil {
				zapLogger.Error("Internal API server error", zap.Error(err))
			}
		}()
	} else {
		zapLogger.Warn("Internal API is disabled in configuration")
	}

	zapLogger.Info("Purge daemon started",
		zap.Bool("enabled", cfg.Cloudflare.IsEnabled()),
		zap.Bool("background", cfg.Purge.IsBackground()),
		zap.String("queue_backend", cfg.Queue.Backend))

	// Switch to configured log level after startup is complete
	dynamicLogger.SwitchToConfiguredLevel()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	dynamicLogger.EnsureInfoLevelForShutdown()
	zapLogger.Info("Shutting down Purge Daemon...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the worker first so no delivery races the server shutdown
	if worker != nil {
		worker.Shutdown()
	}

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Failed to shutdown internal API server gracefully", zap.Error(err))
		}
	}

	if metricsServer != nil {
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			zapLogger.Error("Failed to shutdown metrics server gracefully", zap.Error(err))
		}
	}

	zapLogger.Info("Purge daemon stopped")
}
