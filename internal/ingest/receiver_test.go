package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracecore/tracecore/internal/queue"
	"github.com/tracecore/tracecore/internal/quota"
	"github.com/tracecore/tracecore/internal/storage/memory"
)

func TestReceiver_Ingest_AcceptsValidSpan(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	r := New(q, nil, time.Second)

	env := Envelope{Traces: []RawSpan{
		{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success"},
	}}

	result, err := r.Ingest(context.Background(), "cust1", env, time.Now())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TracesReceived)
	assert.Empty(t, result.Errors)
}

func TestReceiver_Ingest_RejectsMissingField(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	r := New(q, nil, time.Second)

	env := Envelope{Traces: []RawSpan{
		{SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success"},
	}}

	result, err := r.Ingest(context.Background(), "cust1", env, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TracesReceived)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "INVALID_FIELD", result.Errors[0].Code)
}

func TestReceiver_Ingest_RejectsOutOfRangeLatency(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	r := New(q, nil, time.Second)

	bad := -1.0
	env := Envelope{Traces: []RawSpan{
		{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success", LatencyMs: &bad},
	}}

	result, err := r.Ingest(context.Background(), "cust1", env, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "OUT_OF_RANGE", result.Errors[0].Code)
}

func TestReceiver_Ingest_RejectsInvalidStatusEnum(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	r := New(q, nil, time.Second)

	env := Envelope{Traces: []RawSpan{
		{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "bogus"},
	}}

	result, err := r.Ingest(context.Background(), "cust1", env, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "INVALID_ENUM", result.Errors[0].Code)
}

func TestReceiver_Ingest_CustomerIDOverridesClientSupplied(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	r := New(q, nil, time.Second)

	env := Envelope{Traces: []RawSpan{
		{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success"},
	}}

	_, err := r.Ingest(context.Background(), "real-customer", env, time.Now())
	require.NoError(t, err)

	delivery := <-q.Subscribe(context.Background())
	require.Len(t, delivery.Batch.Spans, 1)
	assert.Equal(t, "real-customer", delivery.Batch.Spans[0].CustomerID)
	delivery.Ack()
}

func TestReceiver_Ingest_QuotaExceededRejectsAndDoesNotPersist(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	store := memory.NewQuotaStore()
	enforcer := quota.New(store, 0)
	r := New(q, enforcer, time.Second)

	env := Envelope{Traces: []RawSpan{
		{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success"},
	}}

	result, err := r.Ingest(context.Background(), "cust1", env, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TracesReceived)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "QUOTA_EXCEEDED", result.Errors[0].Code)
}

func TestReceiver_Ingest_QuotaPartiallyAdmitsBatchAtTheBoundary(t *testing.T) {
	q := queue.NewChannelQueue(10)
	defer q.Close()
	store := memory.NewQuotaStore()
	enforcer := quota.New(store, 5)
	r := New(q, enforcer, time.Second)

	traces := make([]RawSpan, 6)
	for i := range traces {
		traces[i] = RawSpan{TraceID: "t1", SpanID: string(rune('a' + i)), ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success"}
	}

	result, err := r.Ingest(context.Background(), "cust1", Envelope{Traces: traces}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5, result.TracesReceived, "5 of the 6 spans must be admitted under a quota of 5")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "QUOTA_EXCEEDED", result.Errors[0].Code)
	assert.Equal(t, 5, result.Errors[0].Index, "the 6th span (index 5) is the one over quota")

	delivery := <-q.Subscribe(context.Background())
	assert.Len(t, delivery.Batch.Spans, 5)
	delivery.Ack()
}

func TestValidate_MarksCostProvidedWhenClientSuppliesCostUSD(t *testing.T) {
	cost := 1.23
	raw := RawSpan{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success", CostUSD: &cost}

	s, verr := validate(raw, "cust1", time.Now())
	require.Nil(t, verr)
	assert.True(t, s.CostProvided)
	assert.Equal(t, 1.23, s.CostUSD)
}

func TestValidate_CostNotProvidedWhenOmitted(t *testing.T) {
	raw := RawSpan{TraceID: "t1", SpanID: "s1", ServiceName: "svc", Endpoint: "/chat", Model: "gpt-4", Status: "success"}

	s, verr := validate(raw, "cust1", time.Now())
	require.Nil(t, verr)
	assert.False(t, s.CostProvided)
}

func TestInferProvider(t *testing.T) {
	assert.Equal(t, "openai", string(inferProvider("gpt-4")))
	assert.Equal(t, "anthropic", string(inferProvider("claude-3-opus")))
	assert.Equal(t, "other", string(inferProvider("llama-3")))
}
