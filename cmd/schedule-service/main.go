// Package main provides the schedule service entry point.
// Consumes administration notifications and publishes recomputed medication
// boards for the cabinet UI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medchart/medpyxis/internal/clock"
	"github.com/medchart/medpyxis/internal/config"
	"github.com/medchart/medpyxis/internal/domain/dosing"
	"github.com/medchart/medpyxis/internal/infrastructure/postgres"
	"github.com/medchart/medpyxis/internal/infrastructure/redpanda"
	"github.com/medchart/medpyxis/internal/observability/metrics"
	"github.com/medchart/medpyxis/internal/observability/tracing"
	"github.com/medchart/medpyxis/internal/schedule"
	"github.com/medchart/medpyxis/pkg/circuitbreaker"
	"github.com/medchart/medpyxis/pkg/idempotency"
)

const serviceName = "schedule-service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.Environment = cfg.Env
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	// a missing patient is an answer, not an outage
	cbManager := circuitbreaker.NewManager(logger)
	cbCfg := circuitbreaker.DefaultConfig("snapshot-store")
	cbCfg.Ignore = []error{postgres.ErrNotFound}
	cbCfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.ObserveBreakerState(name, to.Gauge())
	}
	breaker, err := cbManager.GetOrCreate(cbCfg.Name, cbCfg)
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}

	inbox := idempotency.NewInbox(pool, idempotency.DefaultConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	if n, err := inbox.RecoverStale(ctx); err != nil {
		logger.Warn("inbox recovery failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("recovered stale inbox entries", zap.Int64("count", n))
	}

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger, redpanda.WithProducedCounter(m.KafkaMessagesProduced))
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	scfg := schedule.DefaultConfig()
	scfg.Pool.Workers = cfg.SchedulerWorkers
	engine := dosing.NewEngine(logger, dosing.WithWarningObserver(m.ObserveWarning))
	svc, err := schedule.New(scfg, postgres.NewStore(pool), producer, inbox, breaker, engine,
		clock.NewOffset(nil, cfg.SimTimeOffset), m, logger)
	if err != nil {
		logger.Fatal("schedule service creation failed", zap.Error(err))
	}
	svc.Start()
	defer svc.Stop()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumer, err := redpanda.NewConsumer(consumerCfg, svc.Handle, logger, redpanda.WithConsumedCounter(m.KafkaMessagesConsumed))
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("schedule service started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.Int("workers", cfg.SchedulerWorkers))

	go reportStats(svc, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(cbManager),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}
	logger.Info("schedule service stopped")
}

func reportStats(svc *schedule.Service, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		st := svc.Stats()
		logger.Info("worker pool stats",
			zap.Int64("completed", st.Completed),
			zap.Int64("failed", st.Failed),
			zap.Int64("retried", st.Retried),
			zap.Int("queue_depth", st.QueueDepth))
	}
}

// opsRouter serves metrics and breaker health
func opsRouter(cbManager *circuitbreaker.Manager) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		breakers := cbManager.HealthStatus()
		code := http.StatusOK
		for _, b := range breakers {
			if !b.Healthy {
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{"service": serviceName, "breakers": breakers})
	})
	return r
}
