package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tracecore/tracecore/internal/domain/alert"
)

// AlertStore is the PostgreSQL-backed storage.AlertStore.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Insert(ctx context.Context, a *alert.Alert) error {
	const q = `
INSERT INTO alerts (
    alert_id, trace_id, span_id, customer_id, service_name, endpoint,
    alert_type, severity, current_cost, baseline_cost, cost_increase_percent,
    hash_similarity, semantic_score, scoring_method, reasoning,
    duplicate_count, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err := s.db.ExecContext(ctx, q,
		a.AlertID, a.TraceID, a.SpanID, a.CustomerID, a.ServiceName, a.Endpoint,
		string(a.AlertType), string(a.Severity), a.CurrentCost, a.BaselineCost, a.CostIncreasePercent,
		a.HashSimilarity, a.SemanticScore, string(a.ScoringMethod), a.Reasoning,
		a.DuplicateCount, string(a.Status), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

const alertColumns = `
alert_id, trace_id, span_id, customer_id, service_name, endpoint,
alert_type, severity, current_cost, baseline_cost, cost_increase_percent,
hash_similarity, semantic_score, scoring_method, reasoning,
duplicate_count, status, created_at, acknowledged_at, resolved_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (*alert.Alert, error) {
	var (
		a              alert.Alert
		alertType      string
		severity       string
		scoringMethod  string
		status         string
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
		currentCost    sql.NullFloat64
		baselineCost   sql.NullFloat64
		costIncrease   sql.NullFloat64
		hashSimilarity sql.NullFloat64
		semanticScore  sql.NullFloat64
	)

	if err := row.Scan(
		&a.AlertID, &a.TraceID, &a.SpanID, &a.CustomerID, &a.ServiceName, &a.Endpoint,
		&alertType, &severity, &currentCost, &baselineCost, &costIncrease,
		&hashSimilarity, &semanticScore, &scoringMethod, &a.Reasoning,
		&a.DuplicateCount, &status, &a.CreatedAt, &acknowledgedAt, &resolvedAt,
	); err != nil {
		return nil, err
	}

	a.AlertType = alert.Type(alertType)
	a.Severity = alert.Severity(severity)
	a.ScoringMethod = alert.ScoringMethod(scoringMethod)
	a.Status = alert.Status(status)
	if currentCost.Valid {
		v := currentCost.Float64
		a.CurrentCost = &v
	}
	if baselineCost.Valid {
		v := baselineCost.Float64
		a.BaselineCost = &v
	}
	if costIncrease.Valid {
		v := costIncrease.Float64
		a.CostIncreasePercent = &v
	}
	if hashSimilarity.Valid {
		v := hashSimilarity.Float64
		a.HashSimilarity = &v
	}
	if semanticScore.Valid {
		v := semanticScore.Float64
		a.SemanticScore = &v
	}
	if acknowledgedAt.Valid {
		v := acknowledgedAt.Time
		a.AcknowledgedAt = &v
	}
	if resolvedAt.Valid {
		v := resolvedAt.Time
		a.ResolvedAt = &v
	}

	return &a, nil
}

func (s *AlertStore) FindRecentOpen(ctx context.Context, customerID, service, endpoint string, alertType alert.Type, window time.Duration, now time.Time) (*alert.Alert, error) {
	q := fmt.Sprintf(`
SELECT %s FROM alerts
WHERE customer_id = $1 AND service_name = $2 AND endpoint = $3 AND alert_type = $4
  AND status IN ('pending', 'sent') AND created_at >= $5
ORDER BY created_at DESC LIMIT 1`, alertColumns)

	row := s.db.QueryRowContext(ctx, q, customerID, service, endpoint, string(alertType), now.Add(-window))
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent alert: %w", err)
	}
	return a, nil
}

func (s *AlertStore) IncrementDuplicate(ctx context.Context, alertID string) error {
	const q = `UPDATE alerts SET duplicate_count = duplicate_count + 1 WHERE alert_id = $1`
	_, err := s.db.ExecContext(ctx, q, alertID)
	if err != nil {
		return fmt.Errorf("increment duplicate count: %w", err)
	}
	return nil
}

func (s *AlertStore) Get(ctx context.Context, alertID string) (*alert.Alert, error) {
	q := fmt.Sprintf(`SELECT %s FROM alerts WHERE alert_id = $1`, alertColumns)
	row := s.db.QueryRowContext(ctx, q, alertID)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *AlertStore) List(ctx context.Context, filter alert.Filter) ([]*alert.Alert, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = "+arg(filter.CustomerID))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.Severity != "" {
		where = append(where, "severity = "+arg(string(filter.Severity)))
	}
	if filter.AlertType != "" {
		where = append(where, "alert_type = "+arg(string(filter.AlertType)))
	}

	whereClause := where[0]
	for _, w := range where[1:] {
		whereClause += " AND " + w
	}

	q := fmt.Sprintf(`SELECT %s FROM alerts WHERE %s ORDER BY created_at DESC`, alertColumns, whereClause)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AlertStore) UpdateStatus(ctx context.Context, alertID string, next alert.Status, at time.Time) error {
	switch next {
	case alert.StatusAcknowledged:
		const q = `UPDATE alerts SET status = $1, acknowledged_at = $2 WHERE alert_id = $3`
		_, err := s.db.ExecContext(ctx, q, string(next), at, alertID)
		return err
	case alert.StatusResolved:
		const q = `UPDATE alerts SET status = $1, resolved_at = $2 WHERE alert_id = $3`
		_, err := s.db.ExecContext(ctx, q, string(next), at, alertID)
		return err
	default:
		const q = `UPDATE alerts SET status = $1 WHERE alert_id = $2`
		_, err := s.db.ExecContext(ctx, q, string(next), alertID)
		return err
	}
}

func (s *AlertStore) ExpireStale(ctx context.Context, olderThan time.Time, now time.Time) (int, error) {
	const q = `
UPDATE alerts SET status = 'resolved', resolved_at = $1
WHERE status != 'resolved' AND created_at < $2`
	res, err := s.db.ExecContext(ctx, q, now, olderThan)
	if err != nil {
		return 0, fmt.Errorf("expire stale alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
