package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tracecore/tracecore/internal/apierr"
	"github.com/tracecore/tracecore/internal/domain/span"
)

// handleListSpans serves GET /api/traces (§6 listSpans).
func (s *Server) handleListSpans(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	q := r.URL.Query()

	filter := span.Filter{
		ServiceName: q.Get("service"),
		Endpoint:    q.Get("endpoint"),
		Model:       q.Get("model"),
		Status:      span.Status(q.Get("status")),
		Environment: span.Environment(q.Get("environment")),
	}
	if start, err := parseTimeParam(q.Get("startTime")); err == nil && start != nil {
		filter.StartTime = start
	}
	if end, err := parseTimeParam(q.Get("endTime")); err == nil && end != nil {
		filter.EndTime = end
	}

	page := span.Page{
		Limit:  parseIntParam(q.Get("limit"), 100),
		Offset: parseIntParam(q.Get("offset"), 0),
	}

	spans, total, err := s.query.ListSpans(r.Context(), customerID, filter, page)
	if err != nil {
		writeError(w, apierr.Internal("list spans failed", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": spans,
		"pagination": map[string]interface{}{
			"total":  total,
			"limit":  page.Limit,
			"offset": page.Offset,
		},
	})
}

// handleGetTrace serves GET /api/traces/:trace_id (§6 getTrace).
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	traceID := mux.Vars(r)["trace_id"]

	tree, err := s.query.GetTrace(r.Context(), customerID, traceID)
	if err != nil {
		writeError(w, apierr.Internal("get trace failed", err))
		return
	}
	if tree == nil {
		writeError(w, apierr.NotFound("trace", traceID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"trace": tree})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	q := r.URL.Query()

	start, end := queryWindow(q)
	granularity := q.Get("granularity")
	if granularity == "" {
		granularity = "day"
	}

	buckets, err := s.query.Timeline(r.Context(), customerID, start, end, granularity)
	if err != nil {
		writeError(w, apierr.Internal("timeline failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": buckets})
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	q := r.URL.Query()

	dimension := q.Get("dimension")
	if dimension == "" {
		dimension = "service"
	}
	start, end := queryWindow(q)
	limit := parseIntParam(q.Get("limit"), 50)

	rows, err := s.query.Breakdown(r.Context(), customerID, dimension, start, end, limit)
	if err != nil {
		writeError(w, apierr.Internal("breakdown failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

func (s *Server) handlePercentiles(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	q := r.URL.Query()
	start, end := queryWindow(q)

	set, err := s.query.Percentiles(r.Context(), customerID, q.Get("service"), q.Get("endpoint"), start, end)
	if err != nil {
		writeError(w, apierr.Internal("percentiles failed", err))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r)
	q := r.URL.Query()
	start, end := queryWindow(q)

	summary, err := s.query.Summary(r.Context(), customerID, start, end)
	if err != nil {
		writeError(w, apierr.Internal("summary failed", err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func queryWindow(q url.Values) (time.Time, time.Time) {
	end := time.Now()
	if t, err := parseTimeParam(q.Get("endTime")); err == nil && t != nil {
		end = *t
	}
	start := end.Add(-defaultQueryWindow)
	if t, err := parseTimeParam(q.Get("startTime")); err == nil && t != nil {
		start = *t
	}
	return start, end
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseIntParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
