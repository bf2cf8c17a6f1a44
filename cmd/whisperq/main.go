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

	"whisperq/internal/api"
	"whisperq/internal/config"
	"whisperq/internal/constants"
	"whisperq/internal/database"
	apperrors "whisperq/internal/errors"
	"whisperq/internal/metrics"
	"whisperq/internal/retry"
	"whisperq/internal/service"
	"whisperq/internal/tracing"
	"whisperq/internal/whisper"
	"whisperq/pkg/twitch"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes recipient IDs and names)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("whisperq %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := run(ctx, logger, *configPath, *verbose); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context, logger *logrus.Logger, configPath string, verbose bool) error {
	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting whisperq")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg.LogLevel, verbose)

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = Version
	}
	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	var db *database.Database
	backoff := retry.NewBackoff(retry.FromRetryConfig(cfg.Retry))
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			apperrors.LogWarn(logger, initErr, "Failed to initialize database")
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	registry := metrics.GetRegistry()

	dispatcher, err := whisper.NewDispatcher(ctx, db,
		cfg.Whispers.PerSecondLimit,
		cfg.Whispers.PerMinuteLimit,
		whisper.WithLogger(logger),
		whisper.WithMetrics(registry),
		whisper.WithDefaultMaxRecipients(cfg.Whispers.DefaultMaxWhisperRecipients),
		whisper.WithStoreTimeout(constants.DefaultWhisperStoreTimeoutSec*time.Second),
		whisper.WithVerbose(verbose),
	)
	if err != nil {
		return fmt.Errorf("failed to create whisper dispatcher: %w", err)
	}

	helix := twitch.NewHelixClientWithLogger(
		cfg.Twitch.HelixBaseURL,
		cfg.Twitch.ClientID,
		cfg.Twitch.AccessToken,
		cfg.Twitch.BotUserID,
		&http.Client{Timeout: time.Duration(cfg.Twitch.TimeoutSec) * time.Second},
		logger,
	)

	pump := service.NewWhisperPump(dispatcher, helix, cfg.Whispers, logger, registry)
	if err := pump.Start(service.WithVerbose(ctx, verbose)); err != nil {
		return fmt.Errorf("failed to start whisper pump: %w", err)
	}
	defer pump.Stop()

	logger.WithFields(logrus.Fields{
		"per_second":     cfg.Whispers.PerSecondLimit,
		"per_minute":     cfg.Whispers.PerMinuteLimit,
		"max_recipients": dispatcher.MaxRecipients(),
		"frozen":         dispatcher.Frozen(),
	}).Info("Services started")

	server := api.NewServer(cfg.Server, dispatcher, db, registry, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - recipient identifiers will be logged")
		return
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
