package api

import (
	"net/http"

	"github.com/tracecore/tracecore/internal/apierr"
	"github.com/tracecore/tracecore/internal/queue"
)

// handleDeadLetter serves the supplemented GET /api/deadletter inspection
// endpoint: read-only visibility into batches that exhausted their
// retries, with no automatic re-processing.
func (s *Server) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	cq, ok := s.queue.(*queue.ChannelQueue)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": []interface{}{}, "note": "dead-letter inspection is only available for the in-process channel queue"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": cq.DeadLetters()})
}

type reloadPricingRequest struct {
	Path string `json:"path"`
}

// handleReloadPricing serves the supplemented POST /api/admin/pricing/reload
// endpoint (§6 supplement).
func (s *Server) handleReloadPricing(w http.ResponseWriter, r *http.Request) {
	var req reloadPricingRequest
	if err := decodeJSON(r.Body, &req); err != nil || req.Path == "" {
		writeError(w, apierr.New(apierr.CodeInvalidField, "path is required", http.StatusBadRequest))
		return
	}
	if err := s.prices.Reload(req.Path); err != nil {
		writeError(w, apierr.Internal("pricing table reload failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]interface{}{
		"queue_depth": s.queue.Depth(),
	}

	if s.storeHealth != nil {
		if err := s.storeHealth(); err != nil {
			status = "degraded"
			checks["store_error"] = err.Error()
		}
	}
	if s.workerHealth != nil {
		checks["workers"] = s.workerHealth()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "checks": checks})
}
