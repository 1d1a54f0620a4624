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

	"jpjgate/internal/config"
	"jpjgate/internal/constants"
	"jpjgate/internal/database"
	"jpjgate/internal/parser"
	"jpjgate/internal/retry"
	"jpjgate/internal/service"
	"jpjgate/internal/tracing"
	"jpjgate/pkg/macrokiosk"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("jpjgate %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting jpjgate")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// The database file may live on storage that is briefly unavailable at
	// boot, so initialization retries with backoff.
	var db *database.Database
	backoff := retry.New(retry.Config{
		InitialDelay: time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultBackoffMaxMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	gwCfg := macrokiosk.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		SendEndpoint:     cfg.Gateway.SendEndpoint,
		TokenEndpoint:    cfg.Gateway.TokenEndpoint,
		ServiceID:        cfg.Gateway.ServiceID,
		Username:         cfg.Gateway.Username,
		Password:         cfg.Gateway.Password,
		APIKey:           cfg.Gateway.APIKey,
		UseJWT:           cfg.Gateway.UseJWT,
		DefaultSender:    cfg.Gateway.DefaultSender,
		RetryAttempts:    cfg.Gateway.RetryAttempts,
		RetryDelaySec:    cfg.Gateway.RetryDelaySec,
		TimeoutSec:       cfg.Gateway.TimeoutSec,
		ASCIIMaxLength:   cfg.Gateway.ASCIIMaxLength,
		UnicodeMaxLength: cfg.Gateway.UnicodeMaxLength,
	}

	httpClient := &http.Client{Timeout: time.Duration(gwCfg.TimeoutSec) * time.Second}

	var tokens *macrokiosk.TokenManager
	if gwCfg.UseJWT {
		tokens = macrokiosk.NewTokenManager(gwCfg, httpClient, logger)
	}

	gateway, err := macrokiosk.NewClient(gwCfg, tokens, httpClient, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}

	ingestor := service.NewIngestor(db, parser.New(), logger)
	checker := service.NewChecker(gateway, db, cfg.Gateway.JPJShortcode, logger)

	scheduler := service.NewScheduler(db, cfg.RetentionDays, constants.DefaultCleanupIntervalHours, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(&cfg.Server, ingestor, checker, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
