package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/narration-engine/internal/config"
	"github.com/skypro1111/narration-engine/internal/document"
	"github.com/skypro1111/narration-engine/internal/logging"
	"github.com/skypro1111/narration-engine/internal/metrics"
	"github.com/skypro1111/narration-engine/internal/recognizer"
	"github.com/skypro1111/narration-engine/internal/server"
	"github.com/skypro1111/narration-engine/internal/store"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "narration-engine"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	// A missing .env file is fine; anything else is reported once the logger exists
	envErr := config.LoadEnv(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("Failed to load .env file",
			slog.String("path", *envPath),
			slog.String("error", envErr.Error()),
		)
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.String("data_dir", cfg.Documents.DataDir),
		slog.Int("max_open_documents", cfg.Documents.MaxOpen),
		slog.String("playback_output", cfg.Playback.Output),
		slog.Float64("fade", cfg.Playback.Fade),
		slog.Int("refiner_workers", cfg.Refiner.Workers),
		slog.Bool("recognizer_enabled", cfg.Recognizer.Enabled),
		slog.String("recognizer_endpoint", cfg.Recognizer.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	st, err := store.New(cfg.Documents.DataDir)
	if err != nil {
		logger.Error("Failed to open document store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var rec *recognizer.Client
	if cfg.Recognizer.Enabled {
		rec, err = recognizer.NewClient(recognizer.Config{
			Endpoint:      cfg.Recognizer.Endpoint,
			APIKey:        cfg.Recognizer.APIKey,
			Timeout:       cfg.Recognizer.GetTimeoutDuration(),
			MaxRetries:    cfg.Recognizer.MaxRetries,
			MaxConcurrent: cfg.Recognizer.MaxConcurrent,
			Language:      cfg.Recognizer.Language,
		}, logger, appMetrics)
		if err != nil {
			logger.Error("Failed to create recognizer client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Recognizer client initialized",
			slog.String("endpoint", cfg.Recognizer.Endpoint),
			slog.Int("max_concurrent", cfg.Recognizer.MaxConcurrent),
		)
	}

	docs, err := document.NewManager(logger, st, rec, appMetrics, document.NewManagerConfig(cfg, logger))
	if err != nil {
		logger.Error("Failed to create document manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Document manager initialized",
		slog.Duration("idle_timeout", cfg.Documents.GetIdleTimeoutDuration()),
		slog.String("data_dir", st.Root()),
	)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(logger, cfg, docs, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close documents, audio outputs and the recognizer client
	docs.Stop()

	stats := docs.GetStats()
	logger.Info("Final statistics",
		slog.Uint64("refined_segments", stats.Refiner.TotalSegments),
		slog.Uint64("fallback_segments", stats.Refiner.FallbackSegments),
		slog.Uint64("degenerate_segments", stats.Refiner.DegenerateSegments),
	)

	logger.Info("Service stopped")
}
