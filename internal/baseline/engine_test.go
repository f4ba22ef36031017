package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	baselinedomain "github.com/tracecore/tracecore/internal/domain/baseline"
	"github.com/tracecore/tracecore/internal/storage/memory"
)

func TestNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.InDelta(t, 5, nearestRank(sorted, 0.50), 1)
	assert.InDelta(t, 10, nearestRank(sorted, 0.99), 0.001)
	assert.Equal(t, float64(0), nearestRank(nil, 0.5))
}

func TestEngine_SampleTriggersRecomputeOnDelta(t *testing.T) {
	store := memory.NewBaselineStore()
	e := NewEngine(store, 10000, time.Hour, 5, nil)

	now := time.Now()
	for i := 0; i < 5; i++ {
		e.Sample(context.Background(), "svc", "/chat", 0.001, 100, now)
	}

	b, err := store.Get(context.Background(), baselinedomain.Key{ServiceName: "svc", Endpoint: "/chat", WindowSize: baselinedomain.Window24h})
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 5, b.SampleCount)
	assert.InDelta(t, 0.001, b.P95Cost, 0.0001)
}

func TestEngine_MonotonicLastUpdated(t *testing.T) {
	store := memory.NewBaselineStore()
	e := NewEngine(store, 10000, time.Hour, 1, nil)

	earlier := time.Now().Add(-time.Hour)
	e.Sample(context.Background(), "svc", "/chat", 0.002, 50, earlier)

	later := time.Now()
	e.Sample(context.Background(), "svc", "/chat", 0.004, 75, later)

	b, err := store.Get(context.Background(), baselinedomain.Key{ServiceName: "svc", Endpoint: "/chat", WindowSize: baselinedomain.Window24h})
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, b.LastUpdated.Before(earlier))
}
