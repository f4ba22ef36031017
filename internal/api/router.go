// Package api wires the core's REST surface (§6) with gorilla/mux, plus the
// supplemented admin/inspection endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tracecore/tracecore/internal/anomaly"
	"github.com/tracecore/tracecore/internal/ingest"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/metrics"
	"github.com/tracecore/tracecore/internal/pricing"
	"github.com/tracecore/tracecore/internal/query"
	"github.com/tracecore/tracecore/internal/queue"
	"github.com/tracecore/tracecore/internal/ratelimit"
	"github.com/tracecore/tracecore/internal/storage"
)

// HealthChecker reports whether a dependency the /health endpoint
// aggregates over is currently degraded.
type HealthChecker interface {
	Healthy() bool
}

// WorkerHealth is the subset of worker.Pool.Health the API needs, kept as
// its own type so this package doesn't import internal/worker directly.
type WorkerHealth struct {
	WorkerCount   int
	Busy          int64
	TotalEnriched int64
}

// Server bundles every collaborator the HTTP surface depends on.
type Server struct {
	receiver *ingest.Receiver
	query    *query.Service
	alerts   storage.AlertStore
	anomaly  *anomaly.Engine
	queue    queue.Queue
	prices   *pricing.Table
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	logger   *logging.Logger

	workerHealth func() WorkerHealth
	storeHealth  func() error
}

// NewServer builds a Server and its wired mux.Router.
func NewServer(
	receiver *ingest.Receiver,
	querySvc *query.Service,
	alerts storage.AlertStore,
	anomalyEngine *anomaly.Engine,
	q queue.Queue,
	prices *pricing.Table,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	logger *logging.Logger,
	workerHealth func() WorkerHealth,
	storeHealth func() error,
) *Server {
	return &Server{
		receiver:     receiver,
		query:        querySvc,
		alerts:       alerts,
		anomaly:      anomalyEngine,
		queue:        q,
		prices:       prices,
		limiter:      limiter,
		metrics:      m,
		logger:       logger,
		workerHealth: workerHealth,
		storeHealth:  storeHealth,
	}
}

// Router builds the fully wired *mux.Router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.Use(s.rateLimitMiddleware)

	authed.HandleFunc("/v1/traces", s.handleIngest).Methods(http.MethodPost)

	authed.HandleFunc("/api/traces", s.handleListSpans).Methods(http.MethodGet)
	authed.HandleFunc("/api/traces/{trace_id}", s.handleGetTrace).Methods(http.MethodGet)

	authed.HandleFunc("/api/analytics/timeline", s.handleTimeline).Methods(http.MethodGet)
	authed.HandleFunc("/api/analytics/breakdown", s.handleBreakdown).Methods(http.MethodGet)
	authed.HandleFunc("/api/analytics/percentiles", s.handlePercentiles).Methods(http.MethodGet)
	authed.HandleFunc("/api/analytics/summary", s.handleSummary).Methods(http.MethodGet)

	authed.HandleFunc("/api/alerts", s.handleListAlerts).Methods(http.MethodGet)
	authed.HandleFunc("/api/alerts/{alert_id}/status", s.handleUpdateAlertStatus).Methods(http.MethodPost)

	authed.HandleFunc("/api/deadletter", s.handleDeadLetter).Methods(http.MethodGet)
	authed.HandleFunc("/api/admin/pricing/reload", s.handleReloadPricing).Methods(http.MethodPost)

	return r
}

// customerIDKey is the context key the auth middleware stores the
// extracted customer ID under.
type customerIDKey struct{}

func customerIDFromContext(r *http.Request) string {
	if v, ok := r.Context().Value(customerIDKey{}).(string); ok {
		return v
	}
	return ""
}

const defaultQueryWindow = 24 * time.Hour
