package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracecore/tracecore/internal/anomaly"
	"github.com/tracecore/tracecore/internal/dedup"
	baselinedomain "github.com/tracecore/tracecore/internal/domain/baseline"
	"github.com/tracecore/tracecore/internal/ingest"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/metrics"
	"github.com/tracecore/tracecore/internal/pricing"
	"github.com/tracecore/tracecore/internal/query"
	"github.com/tracecore/tracecore/internal/queue"
	"github.com/tracecore/tracecore/internal/quota"
	"github.com/tracecore/tracecore/internal/scoring"
	"github.com/tracecore/tracecore/internal/storage/memory"
)

// newTestServer wires a Server against an in-memory stack, mirroring the
// collaborators cmd/tracecore/main.go assembles but with no network or
// external-process dependencies, so handler tests run in-process.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	spanStore := memory.NewSpanStore()
	alertStore := memory.NewAlertStore()
	quotaStore := memory.NewQuotaStore()

	q := queue.NewChannelQueue(16)
	quotaEnforcer := quota.New(quotaStore, 50000)
	receiver := ingest.New(q, quotaEnforcer, 0)
	querySvc := query.NewService(spanStore)

	prices, err := pricing.NewTable("")
	require.NoError(t, err)

	logger := logging.NewDefault()
	anomalyEngine := anomaly.NewEngine(noopBaselineReader{}, alertStore, dedup.NewMemoryCache(), scoring.Default, logger)

	m := metrics.New()

	return NewServer(receiver, querySvc, alertStore, anomalyEngine, q, prices, nil, m, logger,
		func() WorkerHealth { return WorkerHealth{WorkerCount: 1} },
		func() error { return nil },
	)
}

type noopBaselineReader struct{}

func (noopBaselineReader) Get(ctx context.Context, key baselinedomain.Key) (*baselinedomain.CostBaseline, error) {
	return nil, nil
}

func authedRequest(method, target string, body interface{}) *http.Request {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, target, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer cust-1")
	r.Header.Set("Content-Type", "application/json")
	return r
}
