package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secureai/privacy-shield/internal/audit"
	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/logger"
	"github.com/secureai/privacy-shield/internal/redaction"
	"github.com/secureai/privacy-shield/internal/server"
	"github.com/secureai/privacy-shield/internal/store"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Privacy-Shield %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Privacy-Shield",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	engine, err := redaction.New(cfg.Redaction, log.WithComponent("redaction"))
	if err != nil {
		log.Fatal("Failed to create redaction engine", zap.Error(err))
	}

	opts := server.Options{}

	if cfg.Store.Redis.Enabled {
		cache, err := store.NewScopeCache(cfg.Store.Redis, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to connect scope cache", zap.Error(err))
		}
		defer cache.Close()
		opts.ScopeCache = cache
	}

	if cfg.Store.Postgres.Enabled {
		mappings, err := store.NewMappingStore(cfg.Store.Postgres, log.WithComponent("store").Logger)
		if err != nil {
			log.Fatal("Failed to connect mapping store", zap.Error(err))
		}
		defer mappings.Close()
		opts.MappingStore = mappings
	}

	if cfg.Audit.Enabled {
		writer, err := audit.NewWriter(cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to create audit writer", zap.Error(err))
		}
		defer writer.Close()
		opts.AuditWriter = writer
	}

	srv, err := server.New(cfg, log, engine, opts)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Re-apply detector selection when the config file changes on disk
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		if err := engine.Detector().Configure(newCfg.Redaction.Detectors); err != nil {
			log.Error("Rejected detector reconfiguration", zap.Error(err))
			return
		}
		log.Info("Detectors reconfigured",
			zap.Strings("detectors", newCfg.Redaction.Detectors))
	}); err != nil {
		log.Warn("Config watching unavailable", zap.Error(err))
	}

	// Periodic system status for the dashboard feed
	statusDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.BroadcastSystemStatus()
			case <-statusDone:
				return
			}
		}
	}()

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		close(statusDone)

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
