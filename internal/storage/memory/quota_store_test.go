package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuotaStore_Reserve_AdmitsFullBatchUnderQuota(t *testing.T) {
	store := NewQuotaStore()
	ctx := context.Background()

	admitted, total, err := store.Reserve(ctx, "cust-1", "2026-07-29", 4, 5)
	require.NoError(t, err)
	require.Equal(t, 4, admitted)
	require.Equal(t, 4, total)
}

func TestQuotaStore_Reserve_PartiallyAdmitsOverflowingBatch(t *testing.T) {
	store := NewQuotaStore()
	ctx := context.Background()

	_, _, err := store.Reserve(ctx, "cust-1", "2026-07-29", 4, 5)
	require.NoError(t, err)

	admitted, total, err := store.Reserve(ctx, "cust-1", "2026-07-29", 2, 5)
	require.NoError(t, err)
	require.Equal(t, 1, admitted, "only 1 of the 2 requested spans fits under the quota")
	require.Equal(t, 5, total)
}

func TestQuotaStore_Reserve_AdmitsNoneOnceAtQuota(t *testing.T) {
	store := NewQuotaStore()
	ctx := context.Background()

	_, _, err := store.Reserve(ctx, "cust-1", "2026-07-29", 5, 5)
	require.NoError(t, err)

	admitted, total, err := store.Reserve(ctx, "cust-1", "2026-07-29", 3, 5)
	require.NoError(t, err)
	require.Equal(t, 0, admitted)
	require.Equal(t, 5, total)
}

func TestQuotaStore_Reserve_SeparateDaysIndependent(t *testing.T) {
	store := NewQuotaStore()
	ctx := context.Background()

	admitted, _, err := store.Reserve(ctx, "cust-1", "2026-07-29", 5, 5)
	require.NoError(t, err)
	require.Equal(t, 5, admitted)

	admitted, _, err = store.Reserve(ctx, "cust-1", "2026-07-30", 5, 5)
	require.NoError(t, err)
	require.Equal(t, 5, admitted)
}
