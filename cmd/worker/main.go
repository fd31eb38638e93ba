// Package main provides the entry point for the keyword hunter run worker.
// With Temporal enabled the worker executes the keyword run workflow and its
// activities from the configured task queue; otherwise it consumes run
// requests from Kafka and executes them directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/keyword-hunter/internal/cache"
	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/database"
	"github.com/helixir/keyword-hunter/internal/events"
	"github.com/helixir/keyword-hunter/internal/keyso"
	"github.com/helixir/keyword-hunter/internal/observability"
	"github.com/helixir/keyword-hunter/internal/repository"
	"github.com/helixir/keyword-hunter/internal/runner"
	"github.com/helixir/keyword-hunter/internal/temporal"
	"github.com/helixir/keyword-hunter/internal/temporal/activities"
	"github.com/helixir/keyword-hunter/internal/temporal/workflows"
)

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
	if !cfg.Temporal.Enabled && !cfg.Kafka.Enabled {
		return errors.New("worker requires temporal.enabled or kafka.enabled: runs are consumed from a task queue or the requests topic")
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("keyword-hunter worker starting")

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

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Create the analytics API client. Workers sharing a token should
	// lower keyso.max_requests so the combined rate stays within quota.
	clientOpts := []keyso.Option{
		keyso.WithLogger(logger),
		keyso.WithMetrics(metrics),
	}
	if cfg.Cache.Enabled {
		suggestionCache := cache.FromConfig(cfg.Cache, metrics)
		defer func() {
			if closeErr := suggestionCache.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close suggestion cache")
			}
		}()
		clientOpts = append(clientOpts, keyso.WithCache(suggestionCache))
	}
	client := keyso.FromConfig(cfg.Keyso, clientOpts...)

	runnerOpts := []runner.Option{
		runner.WithAtomic(runner.Transactional(db)),
		runner.WithRecorder(metrics),
		runner.WithPipelineObservers(metrics, metrics, metrics),
	}

	// Lifecycle events.
	if cfg.Kafka.Enabled {
		publisher := events.NewKafkaPublisher(
			events.NewKafkaWriter(cfg.Kafka, cfg.Kafka.EventsTopic),
			cfg.Kafka.EventsTopic, metrics, logger)
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		runnerOpts = append(runnerOpts, runner.WithPublisher(publisher))
	}

	runs := runner.NewService(repository.NewPgRunRepository(db), client, cfg.Keyso, logger, runnerOpts...)

	var serve func(context.Context) error
	if cfg.Temporal.Enabled {
		temporalClient, err := temporal.NewClient(temporal.ClientConfig{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			TaskQueue: cfg.Temporal.TaskQueue,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		defer temporalClient.Close()

		manager, err := temporal.NewWorkerManager(temporalClient, temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue))
		if err != nil {
			return fmt.Errorf("create temporal worker: %w", err)
		}
		manager.RegisterRunWorkflow(workflows.KeywordRunWorkflow)
		manager.RegisterActivity(activities.NewRunActivities(runs))

		serve = manager.Start
		logger.Info().
			Str("host_port", cfg.Temporal.HostPort).
			Str("namespace", cfg.Temporal.Namespace).
			Str("task_queue", manager.TaskQueue()).
			Msg("consuming runs from temporal")
	} else {
		listener := events.NewListener(events.NewKafkaReader(cfg.Kafka), runs.Execute, logger)
		defer func() {
			if closeErr := listener.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka reader")
			}
		}()

		serve = listener.Run
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.RequestsTopic).
			Str("group_id", cfg.Kafka.GroupID).
			Msg("consuming runs from kafka")
	}

	// Set up Prometheus metrics handler if configured.
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
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	logger.Info().Msg("keyword-hunter worker is ready")

	// serve blocks until the signal context is cancelled.
	if err := serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker: %w", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("keyword-hunter worker stopped")
	return nil
}
