// api is the HTTP server for scheduling and managing outbound campaigns.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"crmres/internal/api"
	"crmres/internal/campaign"
	"crmres/internal/config"
	"crmres/internal/health"
	"crmres/internal/observability"
	"crmres/internal/queue"
	"crmres/internal/quiethours"
	"crmres/internal/ratelimit"
	"crmres/internal/store"
	"crmres/pkg/circuitbreaker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	svcCfg := config.LoadServiceConfig()
	pgCfg := config.LoadPostgresConfig()
	mqCfg := config.LoadRabbitConfig()
	qhCfg := config.LoadQuietHoursConfig()

	logger := slog.Default()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open Postgres
	db, err := sql.Open("postgres", pgCfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	messageStore := store.New(db)

	// Connect to RabbitMQ
	conn, err := queue.NewConnection(mqCfg.URL(), logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	publisher, err := queue.NewPublisher(conn, queue.DefaultWorkQueue, queue.DefaultWaitQueue)
	if err != nil {
		return err
	}

	slog.Info("Connected to Postgres and RabbitMQ")

	// Shared resilience state
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	counters := ratelimit.NewMemoryStore()
	limiter := ratelimit.New(ratelimit.DefaultConfig(), counters)

	// Quiet-hours resolver behind its own breaker
	qhClient := quiethours.NewClient(qhCfg.URL, qhCfg.Timeout)
	resolver := quiethours.NewResolver(
		qhClient,
		breakers.GetWithConfig("quiet-hours-api", circuitbreaker.ExternalAPI),
		logger,
		quiethours.Options{},
	)

	scheduler := campaign.NewScheduler(messageStore.Messages, publisher, resolver, campaign.DefaultSendTimeConfig(), logger)

	// Create health checker
	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"postgres": messageStore,
		"rabbitmq": conn,
	})

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Scheduler:     scheduler,
		Publisher:     publisher,
		DeadLetters:   messageStore.DeadLetters,
		Limiter:       limiter,
		Breakers:      breakers,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Evict idle rate-limit counters in the background
	go counters.RunSweeper(ctx)

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	slog.Info("Shutdown complete")
	return nil
}
