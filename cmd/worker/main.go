// worker consumes dispatch tasks from the work queue: sending messages
// through the provider, applying delivery-status updates, and refreshing
// campaign metrics.
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

	"crmres/internal/config"
	"crmres/internal/health"
	"crmres/internal/observability"
	"crmres/internal/queue"
	"crmres/internal/ratelimit"
	"crmres/internal/store"
	"crmres/internal/whatsapp"
	"crmres/internal/worker"
	"crmres/pkg/circuitbreaker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Worker failed", "error", err)
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
	waCfg := config.LoadWhatsAppConfig()
	prefetch := config.GetIntEnv("WORKER_PREFETCH", 10)

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

	// Shared resilience state. The send limiter paces outbound traffic
	// against the provider's per-second budget.
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	counters := ratelimit.NewMemoryStore()
	limiter := ratelimit.New(ratelimit.DefaultConfig(), counters)
	go counters.RunSweeper(ctx)

	sender := whatsapp.NewClient(waCfg.BaseURL, waCfg.AccessToken, waCfg.Timeout)

	workerCfg := worker.DefaultConfig()
	workerCfg.MaxAttempts = config.GetIntEnv("WORKER_MAX_ATTEMPTS", workerCfg.MaxAttempts)
	workerCfg.AdmissionWait = config.GetDurationEnv("WORKER_ADMISSION_WAIT", workerCfg.AdmissionWait)

	w := worker.New(
		messageStore.Messages,
		messageStore.DeadLetters,
		publisher,
		sender,
		limiter,
		breakers,
		metrics,
		logger,
		workerCfg,
	)

	consumer, err := queue.NewConsumer(conn, queue.DefaultWorkQueue, prefetch, w.Handle, logger)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	// Background sweeps: stuck-message recovery and campaign metrics
	go w.RunDueSweep(ctx)
	go w.RunMetricsSweep(ctx)

	// Create health checker
	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"postgres": messageStore,
		"rabbitmq": conn,
	})

	// Probe and metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsMux.HandleFunc("GET /livez", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	metricsMux.HandleFunc("GET /readyz", func(rw http.ResponseWriter, r *http.Request) {
		if healthChecker.Readiness(r.Context()).IsHealthy() {
			rw.WriteHeader(http.StatusOK)
			return
		}
		rw.WriteHeader(http.StatusServiceUnavailable)
	})
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("Worker started", "prefetch", prefetch)

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Metrics server failed", "error", err)
	}

	// Phase 1: Stop claiming new deliveries; in-flight handlers finish
	healthChecker.SetShuttingDown()
	consumer.Stop()

	// Phase 2: Stop the sweeps and close the probe server
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
