// Package ingest implements the receiver: validates incoming span batches,
// enforces the daily trace quota, and hands accepted spans off to the queue
// (§4.1). It does no enrichment itself — that's the worker pool's job.
package ingest

import (
	"context"
	"time"

	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/queue"
	"github.com/tracecore/tracecore/internal/quota"
)

// RawSpan mirrors the wire format of one element of the "traces" array in
// the §6 ingest payload, distinct from span.Span so optional/string-typed
// wire fields can be validated before being coerced into the domain type.
type RawSpan struct {
	TraceID      string                 `json:"trace_id"`
	SpanID       string                 `json:"span_id"`
	ParentSpanID *string                `json:"parent_span_id,omitempty"`
	Timestamp    *time.Time             `json:"timestamp,omitempty"`
	ServiceName  string                 `json:"service_name"`
	Endpoint     string                 `json:"endpoint"`
	Environment  string                 `json:"environment,omitempty"`
	Model        string                 `json:"model"`
	Provider     string                 `json:"provider,omitempty"`
	Prompt       string                 `json:"prompt,omitempty"`
	Response     string                 `json:"response,omitempty"`
	PromptTokens *int                   `json:"prompt_tokens,omitempty"`
	CompletionTokens *int               `json:"completion_tokens,omitempty"`
	Tokens       *int                   `json:"tokens,omitempty"`
	LatencyMs    *float64               `json:"latency_ms,omitempty"`
	CostUSD      *float64               `json:"cost_usd,omitempty"`
	Status       string                 `json:"status"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
}

// Envelope is the top-level ingest request body.
type Envelope struct {
	Traces []RawSpan `json:"traces"`
}

// SpanError is one rejected span's (index, code, message) — §6's response
// shape.
type SpanError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of one ingest call.
type Result struct {
	Success        bool        `json:"success"`
	TracesReceived int         `json:"traces_received"`
	Errors         []SpanError `json:"errors,omitempty"`
}

const maxLatency = 24 * time.Hour

// Receiver validates, quota-checks, and enqueues ingest envelopes.
type Receiver struct {
	queue          queue.Queue
	quota          *quota.Enforcer
	enqueueTimeout time.Duration
}

// New builds a Receiver.
func New(q queue.Queue, quotaEnforcer *quota.Enforcer, enqueueTimeout time.Duration) *Receiver {
	if enqueueTimeout <= 0 {
		enqueueTimeout = 5 * time.Second
	}
	return &Receiver{queue: q, quota: quotaEnforcer, enqueueTimeout: enqueueTimeout}
}

// Ingest validates every span in env, injects customerID overriding any
// client-supplied value, checks quota, and publishes the accepted spans as
// one batch. It never returns an error for per-span problems — those are
// reported in the Result; it returns an error only when the quota
// reservation itself fails or for a queue-level problem (backpressure,
// context cancellation).
func (r *Receiver) Ingest(ctx context.Context, customerID string, env Envelope, now time.Time) (*Result, error) {
	result := &Result{TracesReceived: 0}

	accepted := make([]*span.Span, 0, len(env.Traces))
	acceptedIdx := make([]int, 0, len(env.Traces))
	for i, raw := range env.Traces {
		s, err := validate(raw, customerID, now)
		if err != nil {
			result.Errors = append(result.Errors, SpanError{Index: i, Code: string(err.code), Message: err.message})
			continue
		}
		accepted = append(accepted, s)
		acceptedIdx = append(acceptedIdx, i)
	}

	if len(accepted) > 0 && r.quota != nil {
		admitted, err := r.quota.Reserve(ctx, customerID, len(accepted), now)
		if err != nil {
			return nil, err
		}
		if admitted < len(accepted) {
			for _, idx := range acceptedIdx[admitted:] {
				result.Errors = append(result.Errors, SpanError{Index: idx, Code: "QUOTA_EXCEEDED", Message: "daily trace quota exceeded"})
			}
			accepted = accepted[:admitted]
		}
	}

	if len(accepted) > 0 {
		publishCtx, cancel := context.WithTimeout(ctx, r.enqueueTimeout)
		defer cancel()
		if err := r.queue.Publish(publishCtx, &queue.Batch{Spans: accepted}); err != nil {
			return nil, err
		}
		result.TracesReceived = len(accepted)
	}

	result.Success = result.TracesReceived > 0 || len(env.Traces) == 0
	return result, nil
}

type validationError struct {
	code    code
	message string
}

type code string

const (
	codeInvalidField code = "INVALID_FIELD"
	codeOutOfRange   code = "OUT_OF_RANGE"
	codeInvalidEnum  code = "INVALID_ENUM"
)

func fail(c code, message string) *validationError {
	return &validationError{code: c, message: message}
}

// validate applies the §4.1 field checks and converts a RawSpan into a
// domain span.Span, injecting customerID regardless of any value the
// client sent.
func validate(raw RawSpan, customerID string, now time.Time) (*span.Span, *validationError) {
	if raw.TraceID == "" {
		return nil, fail(codeInvalidField, "trace_id is required")
	}
	if raw.SpanID == "" {
		return nil, fail(codeInvalidField, "span_id is required")
	}
	if raw.ServiceName == "" {
		return nil, fail(codeInvalidField, "service_name is required")
	}
	if raw.Endpoint == "" {
		return nil, fail(codeInvalidField, "endpoint is required")
	}
	if raw.Model == "" {
		return nil, fail(codeInvalidField, "model is required")
	}
	if raw.Status == "" {
		return nil, fail(codeInvalidField, "status is required")
	}

	status := span.Status(raw.Status)
	if status != span.StatusSuccess && status != span.StatusError {
		return nil, fail(codeInvalidEnum, "status must be success or error")
	}

	var latencyMs float64
	if raw.LatencyMs != nil {
		latencyMs = *raw.LatencyMs
		if latencyMs < 0 || time.Duration(latencyMs)*time.Millisecond > maxLatency {
			return nil, fail(codeOutOfRange, "latency_ms out of range")
		}
	}

	environment := span.Environment(raw.Environment)
	if environment == "" {
		environment = span.EnvironmentLive
	} else if environment != span.EnvironmentLive && environment != span.EnvironmentTest {
		return nil, fail(codeInvalidEnum, "environment must be live or test")
	}

	provider := span.Provider(raw.Provider)
	if provider == "" {
		provider = inferProvider(raw.Model)
	}

	timestamp := now
	if raw.Timestamp != nil {
		timestamp = *raw.Timestamp
	}

	tokens := raw.Tokens
	if tokens == nil && (raw.PromptTokens != nil || raw.CompletionTokens != nil) {
		var p, c int
		if raw.PromptTokens != nil {
			p = *raw.PromptTokens
		}
		if raw.CompletionTokens != nil {
			c = *raw.CompletionTokens
		}
		sum := p + c
		tokens = &sum
	}

	var costUSD float64
	var costProvided bool
	if raw.CostUSD != nil {
		costUSD = *raw.CostUSD
		costProvided = true
	}

	return &span.Span{
		TraceID:          raw.TraceID,
		SpanID:           raw.SpanID,
		ParentSpanID:     raw.ParentSpanID,
		CustomerID:       customerID,
		ServiceName:      raw.ServiceName,
		Endpoint:         raw.Endpoint,
		Environment:      environment,
		Timestamp:        timestamp,
		LatencyMs:        latencyMs,
		Model:            raw.Model,
		Provider:         provider,
		Prompt:           raw.Prompt,
		Response:         raw.Response,
		PromptTokens:     raw.PromptTokens,
		CompletionTokens: raw.CompletionTokens,
		Tokens:           tokens,
		CostUSD:          costUSD,
		CostProvided:     costProvided,
		Metadata:         raw.Metadata,
		Tags:             raw.Tags,
		Status:           status,
		ErrorMessage:     raw.ErrorMessage,
	}, nil
}

// modelProviders maps well-known model name prefixes to their provider, the
// normalize step's "fill missing provider from a model -> provider lookup"
// (§4.3 step 1).
var modelProviders = map[string]span.Provider{
	"gpt-":    span.ProviderOpenAI,
	"claude-": span.ProviderAnthropic,
	"command": span.ProviderCohere,
}

func inferProvider(model string) span.Provider {
	for prefix, provider := range modelProviders {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return provider
		}
	}
	return span.ProviderOther
}
