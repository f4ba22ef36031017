package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracecore/tracecore/internal/storage/memory"
)

func TestEnforcer_Reserve_AllowsUnderQuota(t *testing.T) {
	e := New(memory.NewQuotaStore(), 10)
	admitted, err := e.Reserve(context.Background(), "cust-1", 5, time.Now())
	require.NoError(t, err)
	require.Equal(t, 5, admitted)
}

func TestEnforcer_Reserve_AdmitsOnlyWhatFitsUnderQuota(t *testing.T) {
	e := New(memory.NewQuotaStore(), 5)
	now := time.Now()

	admitted, err := e.Reserve(context.Background(), "cust-1", 4, now)
	require.NoError(t, err)
	require.Equal(t, 4, admitted)

	// Already at 4/5; a 2-span batch must admit 1 and leave 1 over quota,
	// not reject the whole batch.
	admitted, err = e.Reserve(context.Background(), "cust-1", 2, now)
	require.NoError(t, err)
	require.Equal(t, 1, admitted)
}

func TestEnforcer_Reserve_AdmitsNoneOnceAtQuota(t *testing.T) {
	e := New(memory.NewQuotaStore(), 5)
	now := time.Now()

	admitted, err := e.Reserve(context.Background(), "cust-1", 5, now)
	require.NoError(t, err)
	require.Equal(t, 5, admitted)

	admitted, err = e.Reserve(context.Background(), "cust-1", 3, now)
	require.NoError(t, err)
	require.Equal(t, 0, admitted)
}

func TestEnforcer_Reserve_SeparateCustomersIndependent(t *testing.T) {
	e := New(memory.NewQuotaStore(), 10)
	now := time.Now()

	admitted, err := e.Reserve(context.Background(), "cust-1", 10, now)
	require.NoError(t, err)
	require.Equal(t, 10, admitted)

	admitted, err = e.Reserve(context.Background(), "cust-2", 10, now)
	require.NoError(t, err)
	require.Equal(t, 10, admitted)
}
