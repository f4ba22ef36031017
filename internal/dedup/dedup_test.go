package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetThenGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "scope-1", "alert-1", time.Minute))

	id, found, err := c.Get(ctx, "scope-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alert-1", id)
}

func TestMemoryCache_MissForUnknownScope(t *testing.T) {
	c := NewMemoryCache()
	_, found, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryCache_ExpiresAfterWindow(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "scope-1", "alert-1", -time.Second))

	_, found, err := c.Get(ctx, "scope-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestScope_Deterministic(t *testing.T) {
	a := Scope("cust-1", "checkout", "/charge", "cost_spike")
	b := Scope("cust-1", "checkout", "/charge", "cost_spike")
	require.Equal(t, a, b)

	c := Scope("cust-1", "checkout", "/charge", "latency_spike")
	require.NotEqual(t, a, c)
}
