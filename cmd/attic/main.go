package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atticfs/attic/internal/api"
	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/internal/ratelimit"
	"github.com/atticfs/attic/internal/server"
	"github.com/atticfs/attic/pkg/access"
	"github.com/atticfs/attic/pkg/archive"
	"github.com/atticfs/attic/pkg/config"
	"github.com/atticfs/attic/pkg/gc"
	"github.com/atticfs/attic/pkg/identity"
	"github.com/atticfs/attic/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	configureLogger(&cfg.Logging)

	fmt.Println("Attic - Hosted Drive")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Tree store: %s, blob store: %s", cfg.Tree.Type, cfg.Blob.Type)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics collection enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := identity.NewRegistry()
	resolver := access.NewResolver(registry)

	treeStore, err := config.CreateTreeStore(ctx, &cfg.Tree, resolver)
	if err != nil {
		log.Fatalf("Failed to create tree store: %v", err)
	}
	defer closeStore(treeStore)

	blobStore, err := config.CreateBlobStore(ctx, &cfg.Blob)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	if err := config.SeedIdentities(ctx, &cfg.Seed, registry, treeStore); err != nil {
		log.Fatalf("Failed to seed identities: %v", err)
	}

	collector := gc.NewCollector(treeStore, blobStore, gc.Config{
		Enabled:    cfg.GC.Enabled,
		Interval:   cfg.GC.Interval,
		PendingTTL: cfg.GC.PendingTTL,
		DryRun:     cfg.GC.DryRun,
	})
	collector.Start()

	var limiter *ratelimit.Limiter
	if cfg.Limits.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)
		logger.Info("Rate limiting enabled: %d req/s, burst %d", cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)
	}

	handler := api.New(api.Config{
		Store:       treeStore,
		Blobs:       blobStore,
		Registry:    registry,
		Archiver:    archive.NewBuilder(treeStore, blobStore),
		Metrics:     metrics.NewHTTPMetrics(),
		MaxFileSize: cfg.Limits.MaxFileSize,
		RateLimit:   limiter,
	}).Handler()

	srv := server.New(server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, handler)

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", srv.Addr())

	serveErr := srv.Serve(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := collector.Stop(stopCtx); err != nil {
		logger.Error("Garbage collector shutdown error: %v", err)
	}

	if serveErr != nil {
		logger.Error("Server error: %v", serveErr)
		os.Exit(1)
	}
}

// configureLogger applies the logging configuration before anything else
// writes log lines.
func configureLogger(cfg *config.LoggingConfig) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file %s: %v", cfg.Output, err)
		}
		logger.SetOutput(f)
	}
}

// closeStore closes the tree store when the implementation holds external
// resources (the BadgerDB backend does).
func closeStore(store any) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close tree store: %v", err)
		}
	}
}
