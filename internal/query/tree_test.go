package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/storage"
)

func ptr(s string) *string { return &s }

// breakdownLimitSpy is a storage.SpanStore stub that records the limit it
// was called with so Service.Breakdown's default-limit behavior can be
// asserted without a real store.
type breakdownLimitSpy struct {
	storage.SpanStore
	gotLimit int
}

func (s *breakdownLimitSpy) Breakdown(ctx context.Context, customerID, dimension string, start, end time.Time, limit int) ([]storage.BreakdownRow, error) {
	s.gotLimit = limit
	return nil, nil
}

func TestService_Breakdown_DefaultsLimitToFifty(t *testing.T) {
	spy := &breakdownLimitSpy{}
	svc := NewService(spy)

	_, err := svc.Breakdown(context.Background(), "cust1", "model", time.Now().Add(-time.Hour), time.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 50, spy.gotLimit)
}

func TestBuildTree_SingleRoot(t *testing.T) {
	base := time.Now()
	root := &span.Span{SpanID: "root", Timestamp: base, CostUSD: 1, LatencyMs: 100}
	child := &span.Span{SpanID: "child", ParentSpanID: ptr("root"), Timestamp: base.Add(time.Millisecond), CostUSD: 2, LatencyMs: 50}

	tree := BuildTree([]*span.Span{root, child})
	require.NotNil(t, tree)
	assert.False(t, tree.Synthetic)
	assert.Equal(t, "root", tree.Root.Span.SpanID)
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, "child", tree.Root.Children[0].Span.SpanID)
	assert.InDelta(t, 3, tree.CostUSD, 0.0001)
}

func TestBuildTree_MultiRootGetsSyntheticRoot(t *testing.T) {
	base := time.Now()
	rootA := &span.Span{SpanID: "a", Timestamp: base, LatencyMs: 100}
	rootB := &span.Span{SpanID: "b", Timestamp: base.Add(time.Second), LatencyMs: 200}

	tree := BuildTree([]*span.Span{rootA, rootB})
	require.NotNil(t, tree)
	assert.True(t, tree.Synthetic)
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, "a", tree.Root.Children[0].Span.SpanID)
	assert.Equal(t, "b", tree.Root.Children[1].Span.SpanID)
	assert.Equal(t, 200.0, tree.LatencyMs)
}

func TestBuildTree_ChildrenSortedByTimestampThenSpanID(t *testing.T) {
	base := time.Now()
	root := &span.Span{SpanID: "root", Timestamp: base}
	c2 := &span.Span{SpanID: "c2", ParentSpanID: ptr("root"), Timestamp: base.Add(time.Millisecond)}
	c1 := &span.Span{SpanID: "c1", ParentSpanID: ptr("root"), Timestamp: base.Add(time.Millisecond)}

	tree := BuildTree([]*span.Span{root, c2, c1})
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, "c1", tree.Root.Children[0].Span.SpanID)
	assert.Equal(t, "c2", tree.Root.Children[1].Span.SpanID)
}

func TestBuildTree_CycleGuardTreatsOffenderAsRoot(t *testing.T) {
	a := &span.Span{SpanID: "a", ParentSpanID: ptr("b")}
	b := &span.Span{SpanID: "b", ParentSpanID: ptr("a")}

	tree := BuildTree([]*span.Span{a, b})
	require.NotNil(t, tree)
	assert.True(t, tree.Synthetic)
	assert.Len(t, tree.Root.Children, 2, "a cycle between a and b must not drop either span")
}

func TestBuildTree_MissingParentTreatedAsRoot(t *testing.T) {
	orphan := &span.Span{SpanID: "orphan", ParentSpanID: ptr("does-not-exist")}

	tree := BuildTree([]*span.Span{orphan})
	require.NotNil(t, tree)
	assert.False(t, tree.Synthetic)
	assert.Equal(t, "orphan", tree.Root.Span.SpanID)
}
