package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tracecore/tracecore/internal/domain/span"
)

func TestSpanStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO spans").
		WithArgs(
			"trace-1", "span-1", sqlmock.AnyArg(), "cust-1", "checkout", "/charge",
			"live", sqlmock.AnyArg(), 120.0, "gpt-4", "openai", "", "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0.01, "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false,
			sqlmock.AnyArg(), sqlmock.AnyArg(), "success", "",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewSpanStore(db)
	s := &span.Span{
		TraceID: "trace-1", SpanID: "span-1", CustomerID: "cust-1",
		ServiceName: "checkout", Endpoint: "/charge", Environment: span.EnvironmentLive,
		Timestamp: time.Now(), LatencyMs: 120.0, Model: "gpt-4", Provider: span.ProviderOpenAI,
		CostUSD: 0.01, Status: span.StatusSuccess,
	}

	if err := store.Upsert(context.Background(), s); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSpanStore_GetByTraceID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"trace_id", "span_id", "parent_span_id", "customer_id", "service_name", "endpoint",
		"environment", "occurred_at", "latency_ms", "model", "provider", "prompt", "response",
		"prompt_tokens", "completion_tokens", "tokens", "cost_usd", "response_hash",
		"semantic_score", "hash_similarity", "semantic_scored_at", "semantic_cached",
		"metadata", "tags", "status", "error_message",
	}).AddRow(
		"trace-1", "span-1", nil, "cust-1", "checkout", "/charge",
		"live", now, 120.0, "gpt-4", "openai", nil, nil,
		nil, nil, nil, 0.01, nil,
		nil, nil, nil, false,
		[]byte("{}"), []byte("[]"), "success", nil,
	)

	mock.ExpectQuery("SELECT .* FROM spans WHERE trace_id = \\$1").
		WithArgs("trace-1").
		WillReturnRows(rows)

	store := NewSpanStore(db)
	spans, err := store.GetByTraceID(context.Background(), "trace-1")
	if err != nil {
		t.Fatalf("get by trace id: %v", err)
	}
	if len(spans) != 1 || spans[0].SpanID != "span-1" {
		t.Fatalf("unexpected result: %+v", spans)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSpanStore_DeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM spans WHERE occurred_at < \\$1").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewSpanStore(db)
	n, err := store.DeleteOlderThan(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
