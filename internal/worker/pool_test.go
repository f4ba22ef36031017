package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracecore/tracecore/internal/anomaly"
	"github.com/tracecore/tracecore/internal/dedup"
	baselinedomain "github.com/tracecore/tracecore/internal/domain/baseline"
	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/pricing"
	"github.com/tracecore/tracecore/internal/storage/memory"
)

type fakeBaselineReader struct{}

func (fakeBaselineReader) Get(ctx context.Context, key baselinedomain.Key) (*baselinedomain.CostBaseline, error) {
	return nil, nil
}

type fakeSampler struct{}

func (fakeSampler) Sample(ctx context.Context, service, endpoint string, cost, latencyMs float64, now time.Time) {
}

func TestPool_EnrichOne_ComputesCostAndHash(t *testing.T) {
	spans := memory.NewSpanStore()
	prices, err := pricing.NewTable("")
	require.NoError(t, err)
	alerts := memory.NewAlertStore()
	anomalyEngine := anomaly.NewEngine(fakeBaselineReader{}, alerts, dedup.NewMemoryCache(), nil, nil)

	p := NewPool(nil, spans, prices, fakeSampler{}, anomalyEngine, nil, logging.NewDefault(), 1)

	promptTokens := 1000
	completionTokens := 500
	s := &span.Span{
		TraceID: "t1", SpanID: "s1", CustomerID: "c1",
		ServiceName: "chat", Endpoint: "/v1/chat",
		Model: "gpt-4", Provider: span.ProviderOpenAI,
		Response:         "Hello World",
		PromptTokens:     &promptTokens,
		CompletionTokens: &completionTokens,
		Timestamp:        time.Now(),
	}

	err = p.enrichOne(context.Background(), s)
	require.NoError(t, err)

	assert.Greater(t, s.CostUSD, 0.0)
	assert.NotEmpty(t, s.ResponseHash)
	assert.Equal(t, span.EnvironmentLive, s.Environment)
	assert.Equal(t, span.StatusSuccess, s.Status)

	stored, err := spans.GetByTraceID(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestPool_EnrichOne_PopulatesHashSimilarityAgainstModalResponse(t *testing.T) {
	spans := memory.NewSpanStore()
	prices, err := pricing.NewTable("")
	require.NoError(t, err)
	alerts := memory.NewAlertStore()
	anomalyEngine := anomaly.NewEngine(fakeBaselineReader{}, alerts, dedup.NewMemoryCache(), nil, nil)

	p := NewPool(nil, spans, prices, fakeSampler{}, anomalyEngine, nil, logging.NewDefault(), 1)

	modal := func(id, response string) *span.Span {
		return &span.Span{
			TraceID: id, SpanID: id, CustomerID: "c1",
			ServiceName: "chat", Endpoint: "/v1/chat",
			Model: "gpt-4", Provider: span.ProviderOpenAI,
			Response:  response,
			Timestamp: time.Now(),
		}
	}

	// Establish "Hello World" as the modal response for (chat, /v1/chat).
	require.NoError(t, p.enrichOne(context.Background(), modal("t1", "Hello World")))
	require.NoError(t, p.enrichOne(context.Background(), modal("t2", "Hello World")))

	divergent := modal("t3", "a completely different answer")
	require.NoError(t, p.enrichOne(context.Background(), divergent))

	require.NotNil(t, divergent.HashSimilarity)
	assert.Equal(t, 0.0, *divergent.HashSimilarity, "a response diverging from the established modal hash must score dissimilar")
}

func TestPool_ApplyCost_SkipsClientProvidedCost(t *testing.T) {
	prices, err := pricing.NewTable("")
	require.NoError(t, err)
	p := NewPool(nil, nil, prices, nil, nil, nil, logging.NewDefault(), 1)

	promptTokens := 1_000_000
	completionTokens := 1_000_000
	s := &span.Span{
		Model: "gpt-4", Provider: span.ProviderOpenAI,
		PromptTokens: &promptTokens, CompletionTokens: &completionTokens,
		CostUSD: 0.42, CostProvided: true,
	}

	uncertain := p.applyCost(s)
	assert.False(t, uncertain)
	assert.Equal(t, 0.42, s.CostUSD, "a client-supplied cost_usd must not be overwritten by the pricing table")
}

func TestPool_ApplyCost_FallbackWhenUnknownModel(t *testing.T) {
	prices, err := pricing.NewTable("")
	require.NoError(t, err)
	p := NewPool(nil, nil, prices, nil, nil, nil, logging.NewDefault(), 1)

	promptTokens := 1_000_000
	s := &span.Span{Model: "made-up-model", Provider: "made-up", PromptTokens: &promptTokens}
	uncertain := p.applyCost(s)
	assert.True(t, uncertain)
	assert.Equal(t, pricing.FallbackRate.InputPerM, s.CostUSD)
}
