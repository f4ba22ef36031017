// Package span defines the Span entity — the atomic unit of observation.
package span

import "time"

// Environment is the deployment environment a span was captured in.
type Environment string

const (
	EnvironmentLive Environment = "live"
	EnvironmentTest Environment = "test"
)

// Provider identifies the LLM provider a span's model belongs to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderCohere    Provider = "cohere"
	ProviderOther     Provider = "other"
)

// Status is the terminal outcome of the observed operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Span is one observed LLM call or wrapping pipeline step, identified by
// (TraceID, SpanID).
type Span struct {
	TraceID      string  `json:"trace_id"`
	SpanID       string  `json:"span_id"`
	ParentSpanID *string `json:"parent_span_id,omitempty"`

	CustomerID  string      `json:"customer_id"`
	ServiceName string      `json:"service_name"`
	Endpoint    string      `json:"endpoint"`
	Environment Environment `json:"environment"`

	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latency_ms"`

	Model     string   `json:"model"`
	Provider  Provider `json:"provider"`
	Prompt    string   `json:"prompt,omitempty"`
	Response  string   `json:"response,omitempty"`

	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	Tokens           *int `json:"tokens,omitempty"`

	CostUSD float64 `json:"cost_usd"`
	// CostProvided records whether the client supplied cost_usd on the wire,
	// so the worker pool's cost-calculation step (§4.3 step 2) only
	// computes a value when the client didn't already provide one. It's an
	// ingest-to-enrichment pipeline detail, not a persisted store column.
	CostProvided bool `json:"-"`

	ResponseHash     string     `json:"response_hash,omitempty"`
	SemanticScore    *float64   `json:"semantic_score,omitempty"`
	HashSimilarity   *float64   `json:"hash_similarity,omitempty"`
	SemanticScoredAt *time.Time `json:"semantic_scored_at,omitempty"`
	SemanticCached   bool       `json:"semantic_cached,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Tags     []string               `json:"tags,omitempty"`

	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IsRoot reports whether s has no parent within its trace.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == nil || *s.ParentSpanID == ""
}

// Node is a Span positioned within a reconstructed trace tree.
type Node struct {
	Span     *Span   `json:"span"`
	Children []*Node `json:"children,omitempty"`
}

// Tree is the result of getTrace: either a single natural root or a
// synthetic root wrapping a forest.
type Tree struct {
	Root       *Node   `json:"root"`
	Synthetic  bool    `json:"synthetic"`
	LatencyMs  float64 `json:"latency_ms,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// Filter describes the predicate pushdown supported by listSpans.
type Filter struct {
	ServiceName string
	Endpoint    string // prefix match
	Model       string
	Status      Status
	Environment Environment
	StartTime   *time.Time
	EndTime     *time.Time
}

// Page bounds a listSpans result set; Limit is capped at 1000 by the caller.
type Page struct {
	Limit  int
	Offset int
}
