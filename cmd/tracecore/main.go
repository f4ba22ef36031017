// Command tracecore runs the trace observability core: receiver, queue,
// worker pool, baseline/anomaly engines, retention sweeps, and the query
// API, all in a single process.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	alertdomain "github.com/tracecore/tracecore/internal/domain/alert"

	"github.com/tracecore/tracecore/internal/anomaly"
	"github.com/tracecore/tracecore/internal/api"
	"github.com/tracecore/tracecore/internal/baseline"
	"github.com/tracecore/tracecore/internal/config"
	"github.com/tracecore/tracecore/internal/dedup"
	"github.com/tracecore/tracecore/internal/ingest"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/metrics"
	"github.com/tracecore/tracecore/internal/platform/database"
	"github.com/tracecore/tracecore/internal/platform/migrations"
	"github.com/tracecore/tracecore/internal/pricing"
	"github.com/tracecore/tracecore/internal/query"
	"github.com/tracecore/tracecore/internal/queue"
	"github.com/tracecore/tracecore/internal/quota"
	"github.com/tracecore/tracecore/internal/ratelimit"
	"github.com/tracecore/tracecore/internal/retention"
	"github.com/tracecore/tracecore/internal/scoring"
	"github.com/tracecore/tracecore/internal/storage"
	memstore "github.com/tracecore/tracecore/internal/storage/memory"
	pgstore "github.com/tracecore/tracecore/internal/storage/postgres"
	"github.com/tracecore/tracecore/internal/worker"
	"github.com/tracecore/tracecore/pkg/version"
)

func main() {
	log.Printf("tracecore %s starting", version.String())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	spanStore, baselineStore, alertStore, quotaStore, db, err := openStores(rootCtx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	prices, err := pricing.NewTable(cfg.PricingTablePath)
	if err != nil {
		log.Fatalf("load pricing table: %v", err)
	}

	q, err := openQueue(cfg)
	if err != nil {
		log.Fatalf("open queue: %v", err)
	}
	defer q.Close()

	dedupCache := openDedupCache(cfg, logger)

	baselineEngine := baseline.NewEngine(baselineStore, cfg.BaselineSampleCap, cfg.BaselineUpdatePeriod, cfg.BaselineUpdateDelta, logger)
	baselineEngine.Start(rootCtx)
	defer baselineEngine.Stop()

	anomalyEngine := anomaly.NewEngine(baselineEngine, alertStore, dedupCache, scoring.Default, logger)

	m := metrics.New()
	alertSink := alertMetricsSink{log: worker.LogAlertSink{Logger: logger}, m: m}

	pool := worker.NewPool(q, spanStore, prices, baselineEngine, anomalyEngine, alertSink, logger, cfg.WorkerCount)
	pool.Start(rootCtx)
	defer pool.Stop()

	quotaEnforcer := quota.New(quotaStore, cfg.DailyTraceQuota)
	receiver := ingest.New(q, quotaEnforcer, cfg.EnqueueTimeout)

	querySvc := query.NewService(spanStore)
	limiter := ratelimit.New(50, 100)
	stopCleanup := limiter.StartCleanup(5 * time.Minute)
	defer stopCleanup()

	scheduler := retention.New(spanStore, baselineStore, alertStore, logger, cfg.RetentionDays)
	if err := scheduler.Start(rootCtx); err != nil {
		log.Fatalf("start retention scheduler: %v", err)
	}
	defer scheduler.Stop()

	server := api.NewServer(
		receiver, querySvc, alertStore, anomalyEngine, q, prices, limiter, m, logger,
		func() api.WorkerHealth {
			h := pool.Health()
			return api.WorkerHealth{WorkerCount: h.WorkerCount, Busy: h.Busy, TotalEnriched: h.TotalEnriched}
		},
		func() error {
			if db == nil {
				return nil
			}
			return db.PingContext(rootCtx)
		},
	)

	addr := fmt.Sprintf(":%d", cfg.ReceiverPort)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	go func() {
		logger.Logger.WithField("addr", addr).Info("tracecore listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.WithField("error", err).Error("http server shutdown error")
	}
}

// openStores selects postgres-backed stores when StoreURL points at a real
// DSN, or the in-memory stores when it's the "memory://" sentinel —
// useful for local development and the test suite's wiring.
func openStores(ctx context.Context, cfg *config.Config) (storage.SpanStore, storage.BaselineStore, storage.AlertStore, storage.QuotaStore, *sql.DB, error) {
	if strings.HasPrefix(cfg.StoreURL, "memory://") || cfg.StoreURL == "memory" {
		return memstore.NewSpanStore(), memstore.NewBaselineStore(), memstore.NewAlertStore(), memstore.NewQuotaStore(), nil, nil
	}

	db, err := database.Open(ctx, cfg.StoreURL, cfg.PoolSize())
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, nil, nil, nil, nil, err
	}

	return pgstore.NewSpanStore(db), pgstore.NewBaselineStore(db), pgstore.NewAlertStore(db), pgstore.NewQuotaStore(db), db, nil
}

func openQueue(cfg *config.Config) (queue.Queue, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return queue.NewChannelQueue(10000), nil
	}
	return queue.NewNATSQueue(cfg.QueueURL)
}

func openDedupCache(cfg *config.Config, logger *logging.Logger) dedup.Cache {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return dedup.NewMemoryCache()
	}
	cache, err := dedup.NewRedisCache(cfg.RedisURL)
	if err != nil {
		logger.LogDegraded("redis_unavailable", nil)
		return dedup.NewMemoryCache()
	}
	return cache
}

// alertMetricsSink logs every emitted alert (via the shared LogAlertSink)
// and records it against the anomaly-alert counter in the same step.
type alertMetricsSink struct {
	log worker.LogAlertSink
	m   *metrics.Metrics
}

func (s alertMetricsSink) Notify(ctx context.Context, a *alertdomain.Alert) {
	s.log.Notify(ctx, a)
	s.m.RecordAlert(string(a.AlertType), string(a.Severity))
}
