// Package quota enforces the per-customer daily trace quota (§4.1): a
// monotonic counter per (customer_id, UTC day) that resets naturally at UTC
// midnight because the day key itself rolls over.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/tracecore/tracecore/internal/storage"
)

// Enforcer checks and increments the daily counter.
type Enforcer struct {
	store      storage.QuotaStore
	dailyQuota int
}

// New builds an Enforcer backed by store, rejecting once a customer's daily
// count would exceed dailyQuota.
func New(store storage.QuotaStore, dailyQuota int) *Enforcer {
	return &Enforcer{store: store, dailyQuota: dailyQuota}
}

// Reserve admits as many of the n spans from customerID "now" as still fit
// under the daily quota, in order. admitted is in [0, n]: the caller must
// persist only the first admitted spans and reject the rest.
func (e *Enforcer) Reserve(ctx context.Context, customerID string, n int, now time.Time) (admitted int, err error) {
	day := dayKey(now)
	admitted, _, err = e.store.Reserve(ctx, customerID, day, n, e.dailyQuota)
	if err != nil {
		return 0, fmt.Errorf("reserve quota: %w", err)
	}
	return admitted, nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
