package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tracecore/tracecore/internal/domain/baseline"
)

// BaselineStore is the PostgreSQL-backed storage.BaselineStore.
type BaselineStore struct {
	db *sql.DB
}

func NewBaselineStore(db *sql.DB) *BaselineStore {
	return &BaselineStore{db: db}
}

func (s *BaselineStore) Upsert(ctx context.Context, b *baseline.CostBaseline) error {
	const q = `
INSERT INTO cost_baselines (
    service_name, endpoint, window_size, p50_cost, p95_cost, p99_cost,
    p50_latency, p95_latency, p99_latency, sample_count, last_updated
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (service_name, endpoint, window_size) DO UPDATE SET
    p50_cost = EXCLUDED.p50_cost,
    p95_cost = EXCLUDED.p95_cost,
    p99_cost = EXCLUDED.p99_cost,
    p50_latency = EXCLUDED.p50_latency,
    p95_latency = EXCLUDED.p95_latency,
    p99_latency = EXCLUDED.p99_latency,
    sample_count = EXCLUDED.sample_count,
    last_updated = GREATEST(cost_baselines.last_updated, EXCLUDED.last_updated)
`
	_, err := s.db.ExecContext(ctx, q,
		b.ServiceName, b.Endpoint, string(b.WindowSize), b.P50Cost, b.P95Cost, b.P99Cost,
		b.P50Latency, b.P95Latency, b.P99Latency, b.SampleCount, b.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

func (s *BaselineStore) Get(ctx context.Context, key baseline.Key) (*baseline.CostBaseline, error) {
	const q = `
SELECT service_name, endpoint, window_size, p50_cost, p95_cost, p99_cost,
       p50_latency, p95_latency, p99_latency, sample_count, last_updated
FROM cost_baselines WHERE service_name = $1 AND endpoint = $2 AND window_size = $3`

	var b baseline.CostBaseline
	var windowSize string
	err := s.db.QueryRowContext(ctx, q, key.ServiceName, key.Endpoint, string(key.WindowSize)).Scan(
		&b.ServiceName, &b.Endpoint, &windowSize, &b.P50Cost, &b.P95Cost, &b.P99Cost,
		&b.P50Latency, &b.P95Latency, &b.P99Latency, &b.SampleCount, &b.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	b.WindowSize = baseline.WindowSize(windowSize)
	return &b, nil
}

func (s *BaselineStore) GarbageCollect(ctx context.Context, olderThan time.Time) (int, error) {
	const q = `DELETE FROM cost_baselines WHERE last_updated < $1`
	res, err := s.db.ExecContext(ctx, q, olderThan)
	if err != nil {
		return 0, fmt.Errorf("gc baselines: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
