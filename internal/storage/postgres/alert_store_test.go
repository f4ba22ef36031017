package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tracecore/tracecore/internal/domain/alert"
)

func TestAlertStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(
			"alert-1", "trace-1", "span-1", "cust-1", "checkout", "/charge",
			"cost_spike", "high", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), "hash_only", "cost spiked",
			0, "pending", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewAlertStore(db)
	a := &alert.Alert{
		AlertID: "alert-1", TraceID: "trace-1", SpanID: "span-1", CustomerID: "cust-1",
		ServiceName: "checkout", Endpoint: "/charge",
		AlertType: alert.TypeCostSpike, Severity: alert.SeverityHigh,
		ScoringMethod: alert.ScoringHashOnly, Reasoning: "cost spiked",
		Status: alert.StatusPending, CreatedAt: time.Now(),
	}
	if err := store.Insert(context.Background(), a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAlertStore_IncrementDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE alerts SET duplicate_count = duplicate_count \\+ 1 WHERE alert_id = \\$1").
		WithArgs("alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewAlertStore(db)
	if err := store.IncrementDuplicate(context.Background(), "alert-1"); err != nil {
		t.Fatalf("increment duplicate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAlertStore_UpdateStatus_Resolved(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE alerts SET status = \\$1, resolved_at = \\$2 WHERE alert_id = \\$3").
		WithArgs("resolved", sqlmock.AnyArg(), "alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewAlertStore(db)
	if err := store.UpdateStatus(context.Background(), "alert-1", alert.StatusResolved, time.Now()); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
