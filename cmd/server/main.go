// Package main provides the entry point for the keyword hunter REST API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/cache"
	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/database"
	"github.com/helixir/keyword-hunter/internal/events"
	"github.com/helixir/keyword-hunter/internal/keyso"
	"github.com/helixir/keyword-hunter/internal/observability"
	"github.com/helixir/keyword-hunter/internal/repository"
	"github.com/helixir/keyword-hunter/internal/runner"
	httpserver "github.com/helixir/keyword-hunter/internal/server/http"
	"github.com/helixir/keyword-hunter/internal/temporal"
)

// janitorInterval is how often idle per-client limiters are evicted.
const janitorInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("keyword-hunter server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Create the analytics API client, optionally backed by Redis.
	clientOpts := []keyso.Option{
		keyso.WithLogger(logger),
		keyso.WithMetrics(metrics),
	}
	var cacheAdmin httpserver.SuggestionInvalidator
	if cfg.Cache.Enabled {
		suggestionCache := cache.FromConfig(cfg.Cache, metrics)
		defer func() {
			if closeErr := suggestionCache.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close suggestion cache")
			}
		}()
		clientOpts = append(clientOpts, keyso.WithCache(suggestionCache))
		cacheAdmin = suggestionCache
		logger.Info().Str("addr", cfg.Cache.Addr).Msg("suggestion cache enabled")
	}
	client := keyso.FromConfig(cfg.Keyso, clientOpts...)

	runRepo := repository.NewPgRunRepository(db)

	runnerOpts := []runner.Option{
		runner.WithAtomic(runner.Transactional(db)),
		runner.WithRecorder(metrics),
		runner.WithPipelineObservers(metrics, metrics, metrics),
	}

	// Lifecycle events go through Kafka when enabled. Runs are dispatched
	// to Temporal, then Kafka, then executed in this process.
	if cfg.Kafka.Enabled {
		eventsPub := events.NewKafkaPublisher(
			events.NewKafkaWriter(cfg.Kafka, cfg.Kafka.EventsTopic),
			cfg.Kafka.EventsTopic, metrics, logger)
		defer closePublisher(eventsPub, logger)
		runnerOpts = append(runnerOpts, runner.WithPublisher(eventsPub))
	}

	var workflowClient *temporal.RunWorkflowClient
	switch {
	case cfg.Temporal.Enabled:
		temporalClient, err := temporal.NewClient(temporal.ClientConfig{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			TaskQueue: cfg.Temporal.TaskQueue,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		workflowClient = temporal.NewRunWorkflowClient(temporalClient, cfg.Temporal.TaskQueue)
		defer workflowClient.Close()

		runnerOpts = append(runnerOpts, runner.WithDispatcher(workflowClient))
		logger.Info().
			Str("host_port", cfg.Temporal.HostPort).
			Str("task_queue", cfg.Temporal.TaskQueue).
			Msg("dispatching runs through temporal")
	case cfg.Kafka.Enabled:
		requestsPub := events.NewKafkaPublisher(
			events.NewKafkaWriter(cfg.Kafka, cfg.Kafka.RequestsTopic),
			cfg.Kafka.RequestsTopic, metrics, logger)
		defer closePublisher(requestsPub, logger)

		runnerOpts = append(runnerOpts, runner.WithDispatcher(runner.NewKafkaDispatcher(requestsPub)))
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("requests_topic", cfg.Kafka.RequestsTopic).
			Msg("dispatching runs through kafka")
	default:
		runnerOpts = append(runnerOpts, runner.WithLocalDispatch(ctx))
		logger.Info().Msg("executing runs in process")
	}

	runs := runner.NewService(runRepo, client, cfg.Keyso, logger, runnerOpts...)

	throttle := httpserver.ThrottleFromConfig(cfg.APIRateLimit)
	if throttle != nil {
		throttle.StartJanitor(ctx, janitorInterval)
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Defaults:        cfg.Research.RunSpec(),
		Cache:           cacheAdmin,
	}
	if workflowClient != nil {
		httpCfg.Workflows = workflowClient
	}
	httpSrv := httpserver.NewServer(httpCfg, runs, runRepo, db, throttle, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("keyword-hunter is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down keyword-hunter")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	// In-process runs observe the cancelled context and record themselves
	// as failed before returning.
	runs.Wait()

	logger.Info().Msg("keyword-hunter shutdown complete")
	return nil
}

func closePublisher(p events.Publisher, logger zerolog.Logger) {
	if err := p.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close event publisher")
	}
}
