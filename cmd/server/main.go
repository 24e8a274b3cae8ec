package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/audio"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/config"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/db"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/metrics"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/pipeline"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/server"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/session"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/storage"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "interview-audio-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("max_chunk_size_mb", cfg.Server.MaxChunkSizeMB),
		slog.Int("max_sessions", cfg.Session.MaxSessions),
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeout()),
		slog.Duration("finalize_max_wait", cfg.Finalize.GetMaxWait()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("storage_root", cfg.Storage.RootDir),
		slog.String("database_path", cfg.Database.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Open the durable store
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Database opened", slog.String("path", cfg.Database.Path))

	// Initialize object storage
	objectStore, err := storage.NewLocalStore(cfg.Storage.RootDir, cfg.Storage.BaseURL)
	if err != nil {
		logger.Error("Failed to initialize object storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Object storage initialized",
		slog.String("root_dir", cfg.Storage.RootDir),
		slog.String("base_url", cfg.Storage.BaseURL),
	)

	// Initialize transcription client
	sttClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		Language:      cfg.Transcription.Language,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription client initialized",
		slog.String("endpoint", cfg.Transcription.Endpoint),
		slog.Int("max_concurrent", cfg.Transcription.MaxConcurrent),
	)

	// Initialize session cache and time-limit timer
	cache := session.NewCache(logger, cfg.Session.MaxSessions, cfg.Session.GetIdleTimeout())
	timer := session.NewTimer(
		cfg.Session.GetWarningThreshold(),
		cfg.Session.GetCriticalThreshold(),
		cfg.Session.GetExpireThreshold(),
	)

	// Initialize the chunk pipeline
	prober := audio.NewProber(cfg.Audio.EstimateBytesPerSecond)
	processor := pipeline.NewProcessor(logger, cache, objectStore, sttClient, prober, timer)
	finalizer := pipeline.NewFinalizer(logger, cache, objectStore, store, pipeline.FinalizerConfig{
		MaxWait:          cfg.Finalize.GetMaxWait(),
		PartialThreshold: cfg.Finalize.PartialThreshold,
		SegmentBatchSize: cfg.Finalize.SegmentBatchSize,
	})
	logger.Info("Chunk pipeline initialized")

	// Initialize and start the HTTP API server
	httpServer := server.NewHTTPServer(logger, cfg, cache, processor, finalizer, sttClient, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Wait for in-flight transcription requests
	if err := sttClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	// Stop the session cache sweep routine
	cache.Stop()

	// Final statistics
	stats := sttClient.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Float64("success_rate", stats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
