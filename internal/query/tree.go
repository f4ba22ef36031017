// Package query implements the read-side operations: trace tree
// reconstruction and the thin orchestration around the storage layer's
// aggregate queries (§4.5).
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/storage"
)

// Service is the read-side facade the API handlers call into.
type Service struct {
	spans storage.SpanStore
}

// NewService builds a query Service.
func NewService(spans storage.SpanStore) *Service {
	return &Service{spans: spans}
}

// ListSpans delegates to the store's filtered, paginated span listing.
func (s *Service) ListSpans(ctx context.Context, customerID string, filter span.Filter, page span.Page) ([]*span.Span, int, error) {
	if page.Limit <= 0 || page.Limit > 1000 {
		page.Limit = 1000
	}
	return s.spans.List(ctx, customerID, filter, page)
}

// GetTrace reconstructs the tree of spans sharing traceID (§4.5.2):
// children sorted by (Timestamp asc, SpanID lexical) for a deterministic
// order, a guard against parent cycles, and a synthetic root wrapping the
// forest when more than one natural root exists.
func (s *Service) GetTrace(ctx context.Context, customerID, traceID string) (*span.Tree, error) {
	spans, err := s.spans.GetByTraceID(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("get trace %s: %w", traceID, err)
	}

	var owned []*span.Span
	for _, sp := range spans {
		if sp.CustomerID == customerID {
			owned = append(owned, sp)
		}
	}
	if len(owned) == 0 {
		return nil, nil
	}

	return BuildTree(owned), nil
}

// BuildTree assembles a Tree from a flat slice of spans belonging to one
// trace. Exported so the worker/test suites can exercise it without a
// store round-trip.
func BuildTree(spans []*span.Span) *span.Tree {
	nodes := make(map[string]*span.Node, len(spans))
	for _, sp := range spans {
		nodes[sp.SpanID] = &span.Node{Span: sp}
	}

	var roots []*span.Node

	for _, sp := range spans {
		node := nodes[sp.SpanID]
		if sp.IsRoot() {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*sp.ParentSpanID]
		if !ok || wouldCycle(nodes, sp.SpanID, *sp.ParentSpanID) {
			// Parent missing from this trace, or attaching would create a
			// cycle: treat the span as an orphaned root rather than drop it.
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, node := range nodes {
		sortChildren(node.Children)
	}
	sortChildren(roots)

	if len(roots) == 1 {
		return &span.Tree{Root: roots[0], Synthetic: false, LatencyMs: roots[0].Span.LatencyMs, CostUSD: aggregateCost(spans)}
	}

	synthetic := &span.Node{
		Span:     &span.Span{SpanID: "synthetic-root", ServiceName: "trace", Status: span.StatusSuccess},
		Children: roots,
	}
	return &span.Tree{Root: synthetic, Synthetic: true, LatencyMs: aggregateLatency(roots), CostUSD: aggregateCost(spans)}
}

// wouldCycle walks up from parentID toward the root, returning true if it
// ever reaches childID — i.e. attaching childID under parentID would close
// a cycle in the parent chain.
func wouldCycle(nodes map[string]*span.Node, childID, parentID string) bool {
	seen := make(map[string]bool)
	cur := parentID
	for {
		if cur == childID {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		node, ok := nodes[cur]
		if !ok || node.Span.IsRoot() {
			return false
		}
		cur = *node.Span.ParentSpanID
	}
}

func sortChildren(nodes []*span.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].Span, nodes[j].Span
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.SpanID < b.SpanID
	})
}

func aggregateCost(spans []*span.Span) float64 {
	var total float64
	for _, sp := range spans {
		total += sp.CostUSD
	}
	return total
}

func aggregateLatency(roots []*span.Node) float64 {
	var max float64
	for _, r := range roots {
		if r.Span.LatencyMs > max {
			max = r.Span.LatencyMs
		}
	}
	return max
}

// Timeline, Breakdown, Percentiles, and Summary delegate straight to the
// storage layer, which already owns the aggregate SQL/in-memory
// computation (§4.5.3-6).

func (s *Service) Timeline(ctx context.Context, customerID string, start, end time.Time, granularity string) ([]storage.TimelineBucket, error) {
	return s.spans.Timeline(ctx, customerID, start, end, granularity)
}

func (s *Service) Breakdown(ctx context.Context, customerID, dimension string, start, end time.Time, limit int) ([]storage.BreakdownRow, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.spans.Breakdown(ctx, customerID, dimension, start, end, limit)
}

func (s *Service) Percentiles(ctx context.Context, customerID, service, endpoint string, start, end time.Time) (*storage.PercentileSet, error) {
	return s.spans.Percentiles(ctx, customerID, service, endpoint, start, end)
}

func (s *Service) Summary(ctx context.Context, customerID string, start, end time.Time) (*storage.SummaryRow, error) {
	return s.spans.Summary(ctx, customerID, start, end)
}
