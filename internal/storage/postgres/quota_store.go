package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// QuotaStore persists the daily ingestion counter in a small auxiliary
// table, upserted with an atomic increment so concurrent receivers never
// lose an update.
type QuotaStore struct {
	db *sql.DB
}

func NewQuotaStore(db *sql.DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// Reserve locks the (customer_id, day) row for the duration of the
// transaction so concurrent receivers can never both admit spans past
// dailyQuota, then upserts the capped total.
func (s *QuotaStore) Reserve(ctx context.Context, customerID, day string, n, dailyQuota int) (admitted, total int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin quota reservation: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `SELECT count FROM trace_quota_counters WHERE customer_id = $1 AND day = $2 FOR UPDATE`, customerID, day).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, fmt.Errorf("read quota counter: %w", err)
	}

	admitted = dailyQuota - current
	if admitted < 0 {
		admitted = 0
	}
	if admitted > n {
		admitted = n
	}
	total = current + admitted

	const upsert = `
INSERT INTO trace_quota_counters (customer_id, day, count)
VALUES ($1, $2, $3)
ON CONFLICT (customer_id, day) DO UPDATE SET count = EXCLUDED.count`
	if _, err := tx.ExecContext(ctx, upsert, customerID, day, total); err != nil {
		return 0, 0, fmt.Errorf("write quota counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit quota reservation: %w", err)
	}
	return admitted, total, nil
}
