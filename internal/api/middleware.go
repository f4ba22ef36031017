package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tracecore/tracecore/internal/apierr"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/ratelimit"
)

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithContext(r.Context()).WithField("panic", rec).Error("recovered from panic")
				writeError(w, apierr.Internal("internal error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithContext(r.Context()).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		s.metrics.RequestsInFlight.Inc()
		defer s.metrics.RequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// authMiddleware extracts customer_id from the bearer credential. The auth
// collaborator itself — validating the API key against the customer/apikey
// tables — is out of scope (§1 non-goals): this middleware trusts the
// bearer token's value as the customer ID directly, the seam a real auth
// layer would replace.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, apierr.New(apierr.CodeInvalidField, "missing bearer credential", http.StatusUnauthorized))
			return
		}
		customerID := strings.TrimPrefix(auth, "Bearer ")
		if customerID == "" {
			writeError(w, apierr.New(apierr.CodeInvalidField, "empty bearer credential", http.StatusUnauthorized))
			return
		}
		ctx := context.WithValue(r.Context(), customerIDKey{}, customerID)
		ctx = logging.WithCustomerID(ctx, customerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := ratelimit.KeyFromRequest(r, customerIDFromContext(r))
		if !s.limiter.Allow(key) {
			writeError(w, apierr.Backpressure())
			return
		}
		next.ServeHTTP(w, r)
	})
}
