package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tracecore/tracecore/internal/anomaly"
	"github.com/tracecore/tracecore/internal/apierr"
	alertdomain "github.com/tracecore/tracecore/internal/domain/alert"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	q := r.URL.Query()

	filter := alertdomain.Filter{
		CustomerID: customerID,
		Status:     alertdomain.Status(q.Get("status")),
		Severity:   alertdomain.Severity(q.Get("severity")),
		AlertType:  alertdomain.Type(q.Get("alert_type")),
	}

	alerts, err := s.alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, apierr.Internal("list alerts failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": alerts})
}

type updateAlertStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alert_id"]

	var req updateAlertStatusRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, apierr.New(apierr.CodeInvalidField, "malformed request body", http.StatusBadRequest))
		return
	}

	next := alertdomain.Status(req.Status)
	switch next {
	case alertdomain.StatusSent, alertdomain.StatusAcknowledged, alertdomain.StatusResolved:
	default:
		writeError(w, apierr.InvalidEnum("status", req.Status))
		return
	}

	updated, err := s.anomaly.Transition(r.Context(), alertID, next, time.Now())
	if err != nil {
		var invalidErr *anomaly.InvalidTransitionError
		if errors.As(err, &invalidErr) {
			writeError(w, apierr.InvalidTransition(string(invalidErr.From), string(invalidErr.To)))
			return
		}
		writeError(w, apierr.Internal("alert transition failed", err))
		return
	}
	if updated == nil {
		writeError(w, apierr.NotFound("alert", alertID))
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
