package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docuhelp/docuhelp-server/internal/api"
	"github.com/docuhelp/docuhelp-server/internal/config"
	"github.com/docuhelp/docuhelp-server/internal/db"
	"github.com/docuhelp/docuhelp-server/internal/logging"
	"github.com/docuhelp/docuhelp-server/internal/phases"
	"github.com/docuhelp/docuhelp-server/internal/report"
	"github.com/docuhelp/docuhelp-server/internal/sampler"
	"github.com/docuhelp/docuhelp-server/internal/vlm"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create uploads dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting docuhelp server",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"model", cfg.VLMModel(),
	)

	if cfg.OpenRouterAPIKey() == "" {
		logger.Warn("OPENROUTER_API_KEY is not set, analysis requests will fail")
	} else {
		logger.Info("openrouter credentials loaded", "api_key", logging.SanitizeToken(cfg.OpenRouterAPIKey()))
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := report.NewRepository(database.Conn())

	frames := sampler.New(sampler.NewFFmpegDecoder(logger), logger)
	vision := vlm.NewClient(cfg.OpenRouterBaseURL(), cfg.OpenRouterAPIKey(), cfg.VLMModel(), logger)
	reconstructor := phases.NewReconstructor(logger)

	service := report.NewService(repo, frames, vision, reconstructor,
		cfg.UploadsDir(), cfg.MaxFrames(), cfg.MinFrameSeparation(),
		logging.WithComponent(logger, "service"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := report.NewRunner(service, repo, logging.WithComponent(logger, "runner"))
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Service:   service,
		Runner:    runner,
		Logger:    logging.WithComponent(logger, "api"),
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
