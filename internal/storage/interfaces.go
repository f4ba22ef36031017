// Package storage defines the store interfaces the rest of the core depends
// on, one per concern, mirroring the teacher's per-area store split.
package storage

import (
	"context"
	"time"

	"github.com/tracecore/tracecore/internal/domain/alert"
	"github.com/tracecore/tracecore/internal/domain/baseline"
	"github.com/tracecore/tracecore/internal/domain/span"
)

// SpanStore persists and queries spans.
type SpanStore interface {
	// Upsert inserts s, or — on (trace_id, span_id) conflict — updates only
	// Timestamp, LatencyMs, and Status, leaving every other field intact.
	Upsert(ctx context.Context, s *span.Span) error

	// GetByTraceID returns every span sharing traceID, in no particular order.
	GetByTraceID(ctx context.Context, traceID string) ([]*span.Span, error)

	// GetTracesByIDs returns every span whose trace_id is in traceIDs. This
	// backs the replay engine's getTracesByIds collaborator interface (§1).
	GetTracesByIDs(ctx context.Context, traceIDs []string) ([]*span.Span, error)

	// List applies Filter + Page pushdown, ordered by Timestamp descending.
	List(ctx context.Context, customerID string, filter span.Filter, page span.Page) ([]*span.Span, int, error)

	// CountSince returns how many spans customerID has ingested since since.
	// The daily quota does not use it; it counts through QuotaStore.Reserve.
	CountSince(ctx context.Context, customerID string, since time.Time) (int, error)

	// DeleteOlderThan deletes spans with Timestamp < cutoff, cascading to
	// dependent alerts/replay rows, and returns the number of spans removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Aggregate query-layer operations.
	Timeline(ctx context.Context, customerID string, start, end time.Time, granularity string) ([]TimelineBucket, error)
	Breakdown(ctx context.Context, customerID string, dimension string, start, end time.Time, limit int) ([]BreakdownRow, error)
	Percentiles(ctx context.Context, customerID, service, endpoint string, start, end time.Time) (*PercentileSet, error)
	Summary(ctx context.Context, customerID string, start, end time.Time) (*SummaryRow, error)
}

// TimelineBucket is one time-bucketed row of the timeline operation.
type TimelineBucket struct {
	Bucket      time.Time
	Count       int
	TotalCost   float64
	AvgLatency  float64
	TotalTokens int
}

// BreakdownRow is one dimension-grouped row of the breakdown operation.
type BreakdownRow struct {
	Dimension   string
	Count       int
	TotalCost   float64
	AvgLatency  float64
	TotalTokens int
}

// PercentileSet holds cost and latency percentiles together (§4.5.5).
type PercentileSet struct {
	CostP50, CostP95, CostP99       float64
	LatencyP50, LatencyP95, LatencyP99 float64
}

// SummaryRow is the aggregate summary operation result (§4.5.6).
type SummaryRow struct {
	TotalRequests   int
	TotalCost       float64
	AvgCost         float64
	TotalTokens     int
	AvgLatency      float64
	ErrorRate       float64
	UniqueServices  int
	UniqueModels    int
}

// BaselineStore persists CostBaseline rows.
type BaselineStore interface {
	Upsert(ctx context.Context, b *baseline.CostBaseline) error
	Get(ctx context.Context, key baseline.Key) (*baseline.CostBaseline, error)
	GarbageCollect(ctx context.Context, olderThan time.Time) (int, error)
}

// AlertStore persists Alert rows and their dedup lookups.
type AlertStore interface {
	Insert(ctx context.Context, a *alert.Alert) error

	// FindRecentOpen returns the most recent pending/sent alert matching
	// (customerID, service, endpoint, alertType) created within window of
	// now, or nil if none exists — the store-backed fallback for dedup
	// cache misses (§5).
	FindRecentOpen(ctx context.Context, customerID, service, endpoint string, alertType alert.Type, window time.Duration, now time.Time) (*alert.Alert, error)

	// IncrementDuplicate bumps DuplicateCount on an existing alert.
	IncrementDuplicate(ctx context.Context, alertID string) error

	Get(ctx context.Context, alertID string) (*alert.Alert, error)
	List(ctx context.Context, filter alert.Filter) ([]*alert.Alert, error)

	// UpdateStatus performs a state-machine transition, setting
	// AcknowledgedAt/ResolvedAt as appropriate.
	UpdateStatus(ctx context.Context, alertID string, next alert.Status, at time.Time) error

	// ExpireStale force-resolves alerts older than AutoExpire still open.
	ExpireStale(ctx context.Context, olderThan time.Time, now time.Time) (int, error)
}

// QuotaStore tracks the daily ingestion counter per customer. It is a thin
// interface distinct from SpanStore.CountSince so an in-memory counter can
// back it without a store round-trip on every span.
type QuotaStore interface {
	// Reserve atomically admits up to n more spans for (customerID, day)
	// without letting the counter exceed dailyQuota, incrementing it by
	// however many were admitted. admitted is in [0, n]: it's n when the
	// full batch fits under the cap, 0 when the customer is already at or
	// over quota, and something in between when only part of the batch
	// fits — the caller is responsible for rejecting the remainder.
	Reserve(ctx context.Context, customerID, day string, n, dailyQuota int) (admitted, total int, err error)
}
