package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tracecore/tracecore/internal/apierr"
	"github.com/tracecore/tracecore/internal/ingest"
	"github.com/tracecore/tracecore/internal/queue"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var env ingest.Envelope
	if err := decodeJSON(r.Body, &env); err != nil {
		writeError(w, apierr.New(apierr.CodeInvalidField, "malformed request body", http.StatusBadRequest))
		return
	}

	customerID := customerIDFromContext(r)
	result, err := s.receiver.Ingest(r.Context(), customerID, env, time.Now())
	if err != nil {
		if errors.Is(err, queue.ErrFull) {
			writeError(w, apierr.Backpressure())
			return
		}
		writeError(w, apierr.Internal("ingest failed", err))
		return
	}

	if s.metrics != nil {
		s.metrics.RecordIngested(customerID, result.TracesReceived)
		for _, e := range result.Errors {
			s.metrics.RecordRejected(e.Code)
		}
	}

	writeJSON(w, http.StatusAccepted, result)
}
