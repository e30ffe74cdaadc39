/**
 * @description
 * This is the main entry point for the recurring-service. The service owns
 * the recurring transaction engine: it exposes the schedule lifecycle API
 * over HTTP and runs the due-scan and retry-sweep background jobs on a cron
 * cadence. It initializes configuration, the database pool, the event
 * producer, the external service clients and the HTTP server, wires
 * everything together, and shuts down gracefully on SIGINT/SIGTERM.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/transfa/recurring-service/internal/api"
	"github.com/transfa/recurring-service/internal/app"
	"github.com/transfa/recurring-service/internal/config"
	"github.com/transfa/recurring-service/internal/store"
	"github.com/transfa/recurring-service/pkg/ledgerclient"
	"github.com/transfa/recurring-service/pkg/permissionclient"
	"github.com/transfa/recurring-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// The event producer is optional: execution outcomes degrade to log-only
	// when RabbitMQ is unavailable.
	var producer *rabbitmq.EventProducer
	if cfg.RabbitMQURL != "" {
		producer, err = rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; outcome events disabled", "error", err)
			producer = nil
		} else {
			defer producer.Close()
			logger.Info("rabbitmq producer connected", "exchange", cfg.EventExchange)
		}
	}

	// Initialize dependencies
	repository := store.NewPostgresRepository(dbpool)
	ledgerClient := ledgerclient.NewClient(cfg.LedgerServiceURL, cfg.InternalAPIKey)
	permClient := permissionclient.NewClient(cfg.HouseholdServiceURL, cfg.InternalAPIKey)

	service := app.NewService(repository, permClient, logger)
	var publisher app.EventPublisher
	if producer != nil {
		publisher = producer
	}
	runner := app.NewRunner(repository, ledgerClient, publisher, logger, time.Duration(cfg.LedgerTimeoutSeconds)*time.Second)
	jobs := app.NewJobs(repository, runner, logger, cfg.ExecutionRetryLimit, cfg.RetrySweepBatchSize, cfg.MaxConcurrentExecutions, time.Duration(cfg.ClaimTTLMinutes)*time.Minute)
	scheduler := app.NewScheduler(jobs, logger, cfg.DueScanSchedule, cfg.RetrySweepSchedule)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started")

	// Set up the HTTP router and start the server.
	handlers := api.NewScheduleHandlers(service, jobs, logger)
	router := chi.NewRouter()
	router.Mount("/recurring", api.ScheduleRoutes(handlers, cfg.ClerkJWKSURL, cfg.InternalAPIKey))
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// Stop the scheduler and wait for running jobs to finish.
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("shutdown complete")
}
