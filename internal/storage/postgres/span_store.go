// Package postgres implements the core's store interfaces against
// PostgreSQL using database/sql and lib/pq directly, the way the teacher's
// own stores do — no ORM, parameterized queries, manual Scan.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/storage"
)

// SpanStore is the PostgreSQL-backed storage.SpanStore.
type SpanStore struct {
	db *sql.DB
}

// NewSpanStore wraps db.
func NewSpanStore(db *sql.DB) *SpanStore {
	return &SpanStore{db: db}
}

// Upsert inserts s, or on (trace_id, span_id) conflict updates only the
// mutable subset (occurred_at, latency_ms, status) per §3's conflict policy.
func (s *SpanStore) Upsert(ctx context.Context, in *span.Span) error {
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tags, err := json.Marshal(in.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	const q = `
INSERT INTO spans (
    trace_id, span_id, parent_span_id, customer_id, service_name, endpoint,
    environment, occurred_at, latency_ms, model, provider, prompt, response,
    prompt_tokens, completion_tokens, tokens, cost_usd, response_hash,
    semantic_score, hash_similarity, semantic_scored_at, semantic_cached,
    metadata, tags, status, error_message
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
    $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
)
ON CONFLICT (trace_id, span_id) DO UPDATE SET
    occurred_at = EXCLUDED.occurred_at,
    latency_ms  = EXCLUDED.latency_ms,
    status      = EXCLUDED.status
`
	_, err = s.db.ExecContext(ctx, q,
		in.TraceID, in.SpanID, in.ParentSpanID, in.CustomerID, in.ServiceName, in.Endpoint,
		string(in.Environment), in.Timestamp, in.LatencyMs, in.Model, string(in.Provider), in.Prompt, in.Response,
		in.PromptTokens, in.CompletionTokens, in.Tokens, in.CostUSD, in.ResponseHash,
		in.SemanticScore, in.HashSimilarity, in.SemanticScoredAt, in.SemanticCached,
		metadata, tags, string(in.Status), in.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("upsert span: %w", err)
	}
	return nil
}

const spanColumns = `
trace_id, span_id, parent_span_id, customer_id, service_name, endpoint,
environment, occurred_at, latency_ms, model, provider, prompt, response,
prompt_tokens, completion_tokens, tokens, cost_usd, response_hash,
semantic_score, hash_similarity, semantic_scored_at, semantic_cached,
metadata, tags, status, error_message`

func scanSpan(row interface{ Scan(...interface{}) error }) (*span.Span, error) {
	var (
		sp             span.Span
		parentSpanID   sql.NullString
		environment    string
		provider       string
		prompt         sql.NullString
		response       sql.NullString
		promptTokens   sql.NullInt64
		completionTokens sql.NullInt64
		tokens         sql.NullInt64
		responseHash   sql.NullString
		semanticScore  sql.NullFloat64
		hashSimilarity sql.NullFloat64
		semanticScoredAt sql.NullTime
		metadata       []byte
		tags           []byte
		status         string
		errMessage     sql.NullString
	)

	if err := row.Scan(
		&sp.TraceID, &sp.SpanID, &parentSpanID, &sp.CustomerID, &sp.ServiceName, &sp.Endpoint,
		&environment, &sp.Timestamp, &sp.LatencyMs, &sp.Model, &provider, &prompt, &response,
		&promptTokens, &completionTokens, &tokens, &sp.CostUSD, &responseHash,
		&semanticScore, &hashSimilarity, &semanticScoredAt, &sp.SemanticCached,
		&metadata, &tags, &status, &errMessage,
	); err != nil {
		return nil, err
	}

	if parentSpanID.Valid {
		v := parentSpanID.String
		sp.ParentSpanID = &v
	}
	sp.Environment = span.Environment(environment)
	sp.Provider = span.Provider(provider)
	sp.Prompt = prompt.String
	sp.Response = response.String
	if promptTokens.Valid {
		v := int(promptTokens.Int64)
		sp.PromptTokens = &v
	}
	if completionTokens.Valid {
		v := int(completionTokens.Int64)
		sp.CompletionTokens = &v
	}
	if tokens.Valid {
		v := int(tokens.Int64)
		sp.Tokens = &v
	}
	sp.ResponseHash = responseHash.String
	if semanticScore.Valid {
		v := semanticScore.Float64
		sp.SemanticScore = &v
	}
	if hashSimilarity.Valid {
		v := hashSimilarity.Float64
		sp.HashSimilarity = &v
	}
	if semanticScoredAt.Valid {
		v := semanticScoredAt.Time
		sp.SemanticScoredAt = &v
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &sp.Metadata)
	}
	if len(tags) > 0 {
		_ = json.Unmarshal(tags, &sp.Tags)
	}
	sp.Status = span.Status(status)
	sp.ErrorMessage = errMessage.String

	return &sp, nil
}

func (s *SpanStore) GetByTraceID(ctx context.Context, traceID string) ([]*span.Span, error) {
	q := fmt.Sprintf(`SELECT %s FROM spans WHERE trace_id = $1`, spanColumns)
	rows, err := s.db.QueryContext(ctx, q, traceID)
	if err != nil {
		return nil, fmt.Errorf("query spans by trace: %w", err)
	}
	defer rows.Close()

	var out []*span.Span
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// GetTracesByIDs fetches every span whose trace_id is among traceIDs, used
// by the external replay engine to rehydrate the spans it will re-execute.
func (s *SpanStore) GetTracesByIDs(ctx context.Context, traceIDs []string) ([]*span.Span, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM spans WHERE trace_id = ANY($1)`, spanColumns)
	rows, err := s.db.QueryContext(ctx, q, pq.Array(traceIDs))
	if err != nil {
		return nil, fmt.Errorf("query spans by trace ids: %w", err)
	}
	defer rows.Close()

	var out []*span.Span
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *SpanStore) List(ctx context.Context, customerID string, filter span.Filter, page span.Page) ([]*span.Span, int, error) {
	where := []string{"customer_id = $1"}
	args := []interface{}{customerID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ServiceName != "" {
		where = append(where, "service_name = "+arg(filter.ServiceName))
	}
	if filter.Endpoint != "" {
		where = append(where, "endpoint LIKE "+arg(filter.Endpoint+"%"))
	}
	if filter.Model != "" {
		where = append(where, "model = "+arg(filter.Model))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.Environment != "" {
		where = append(where, "environment = "+arg(string(filter.Environment)))
	}
	if filter.StartTime != nil {
		where = append(where, "occurred_at >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		where = append(where, "occurred_at <= "+arg(*filter.EndTime))
	}

	whereClause := ""
	for i, w := range where {
		if i == 0 {
			whereClause = "WHERE " + w
		} else {
			whereClause += " AND " + w
		}
	}

	limit := page.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	countQ := fmt.Sprintf(`SELECT count(*) FROM spans %s`, whereClause)
	var total int
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count spans: %w", err)
	}

	limitArg := arg(limit)
	offsetArg := arg(offset)
	listQ := fmt.Sprintf(`SELECT %s FROM spans %s ORDER BY occurred_at DESC LIMIT %s OFFSET %s`,
		spanColumns, whereClause, limitArg, offsetArg)

	rows, err := s.db.QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var out []*span.Span
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan span: %w", err)
		}
		out = append(out, sp)
	}
	return out, total, rows.Err()
}

func (s *SpanStore) CountSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	const q = `SELECT count(*) FROM spans WHERE customer_id = $1 AND occurred_at >= $2`
	var n int
	if err := s.db.QueryRowContext(ctx, q, customerID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count spans since: %w", err)
	}
	return n, nil
}

func (s *SpanStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM spans WHERE occurred_at < $1`
	res, err := s.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old spans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SpanStore) Timeline(ctx context.Context, customerID string, start, end time.Time, granularity string) ([]storage.TimelineBucket, error) {
	trunc, ok := truncUnit(granularity)
	if !ok {
		trunc = "hour"
	}
	const q = `
SELECT date_trunc($1, occurred_at) AS bucket,
       count(*), coalesce(sum(cost_usd),0), coalesce(avg(latency_ms),0), coalesce(sum(tokens),0)
FROM spans
WHERE customer_id = $2 AND occurred_at BETWEEN $3 AND $4
GROUP BY bucket
ORDER BY bucket`
	rows, err := s.db.QueryContext(ctx, q, trunc, customerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("timeline query: %w", err)
	}
	defer rows.Close()

	present := make(map[time.Time]storage.TimelineBucket)
	for rows.Next() {
		var tb storage.TimelineBucket
		if err := rows.Scan(&tb.Bucket, &tb.Count, &tb.TotalCost, &tb.AvgLatency, &tb.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		present[tb.Bucket.UTC()] = tb
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fillGaps(present, start, end, granularity), nil
}

func truncUnit(granularity string) (string, bool) {
	switch granularity {
	case "hour", "day", "week", "month":
		return granularity, true
	default:
		return "", false
	}
}

func fillGaps(present map[time.Time]storage.TimelineBucket, start, end time.Time, granularity string) []storage.TimelineBucket {
	step := func(t time.Time) time.Time { return t.Add(time.Hour) }
	truncate := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	}
	switch granularity {
	case "day":
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
		truncate = func(t time.Time) time.Time {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	case "week":
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
		truncate = func(t time.Time) time.Time {
			t = t.UTC()
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return d.AddDate(0, 0, -int(t.Weekday()))
		}
	case "month":
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
		truncate = func(t time.Time) time.Time {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
	}

	cur := truncate(start)
	last := truncate(end)
	var out []storage.TimelineBucket
	for !cur.After(last) {
		if tb, ok := present[cur]; ok {
			out = append(out, tb)
		} else {
			out = append(out, storage.TimelineBucket{Bucket: cur})
		}
		cur = step(cur)
	}
	return out
}

func (s *SpanStore) Breakdown(ctx context.Context, customerID string, dimension string, start, end time.Time, limit int) ([]storage.BreakdownRow, error) {
	column, ok := dimensionColumn(dimension)
	if !ok {
		column = "service_name"
	}
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`
SELECT %s AS dim, count(*), coalesce(sum(cost_usd),0), coalesce(avg(latency_ms),0), coalesce(sum(tokens),0)
FROM spans
WHERE customer_id = $1 AND occurred_at BETWEEN $2 AND $3
GROUP BY dim
ORDER BY sum(cost_usd) DESC
LIMIT $4`, column)

	rows, err := s.db.QueryContext(ctx, q, customerID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("breakdown query: %w", err)
	}
	defer rows.Close()

	var out []storage.BreakdownRow
	for rows.Next() {
		var r storage.BreakdownRow
		if err := rows.Scan(&r.Dimension, &r.Count, &r.TotalCost, &r.AvgLatency, &r.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan breakdown row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func dimensionColumn(dimension string) (string, bool) {
	switch dimension {
	case "service":
		return "service_name", true
	case "model":
		return "model", true
	case "endpoint":
		return "endpoint", true
	case "provider":
		return "provider", true
	default:
		return "", false
	}
}

func (s *SpanStore) Percentiles(ctx context.Context, customerID, service, endpoint string, start, end time.Time) (*storage.PercentileSet, error) {
	where := []string{"customer_id = $1", "occurred_at BETWEEN $2 AND $3"}
	args := []interface{}{customerID, start, end}
	if service != "" {
		args = append(args, service)
		where = append(where, fmt.Sprintf("service_name = $%d", len(args)))
	}
	if endpoint != "" {
		args = append(args, endpoint)
		where = append(where, fmt.Sprintf("endpoint = $%d", len(args)))
	}

	whereClause := where[0]
	for _, w := range where[1:] {
		whereClause += " AND " + w
	}

	q := fmt.Sprintf(`
SELECT
  coalesce(percentile_cont(0.50) WITHIN GROUP (ORDER BY cost_usd), 0),
  coalesce(percentile_cont(0.95) WITHIN GROUP (ORDER BY cost_usd), 0),
  coalesce(percentile_cont(0.99) WITHIN GROUP (ORDER BY cost_usd), 0),
  coalesce(percentile_cont(0.50) WITHIN GROUP (ORDER BY latency_ms), 0),
  coalesce(percentile_cont(0.95) WITHIN GROUP (ORDER BY latency_ms), 0),
  coalesce(percentile_cont(0.99) WITHIN GROUP (ORDER BY latency_ms), 0)
FROM spans WHERE %s`, whereClause)

	var ps storage.PercentileSet
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&ps.CostP50, &ps.CostP95, &ps.CostP99,
		&ps.LatencyP50, &ps.LatencyP95, &ps.LatencyP99,
	)
	if err != nil {
		return nil, fmt.Errorf("percentiles query: %w", err)
	}
	return &ps, nil
}

func (s *SpanStore) Summary(ctx context.Context, customerID string, start, end time.Time) (*storage.SummaryRow, error) {
	const q = `
SELECT
  count(*),
  coalesce(sum(cost_usd),0),
  coalesce(avg(cost_usd),0),
  coalesce(sum(tokens),0),
  coalesce(avg(latency_ms),0),
  coalesce(avg(CASE WHEN status = 'error' THEN 1 ELSE 0 END),0),
  count(DISTINCT service_name),
  count(DISTINCT model)
FROM spans WHERE customer_id = $1 AND occurred_at BETWEEN $2 AND $3`

	var row storage.SummaryRow
	err := s.db.QueryRowContext(ctx, q, customerID, start, end).Scan(
		&row.TotalRequests, &row.TotalCost, &row.AvgCost, &row.TotalTokens,
		&row.AvgLatency, &row.ErrorRate, &row.UniqueServices, &row.UniqueModels,
	)
	if err != nil {
		return nil, fmt.Errorf("summary query: %w", err)
	}
	return &row, nil
}
