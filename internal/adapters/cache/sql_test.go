package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackendSuite checks behaviour shared by persistent backends.
func runBackendSuite(t *testing.T, b Backend, clk *testclock.Clock) {
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put(ctx, "ranking:333:single:national:-:10", []byte("one"), 0))
	require.NoError(t, b.Put(ctx, "ranking:333:single:national:-:10", []byte("two"), 0))
	v, ok, err := b.Get(ctx, "ranking:333:single:national:-:10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", string(v))

	require.NoError(t, b.Put(ctx, "ranking:333_x:single:national:-:10", []byte("u"), 0))
	require.NoError(t, b.Put(ctx, "rankingX", []byte("u"), 0))
	require.NoError(t, b.Put(ctx, "competitions", []byte("c"), time.Minute))

	n, err := b.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	clk.Advance(time.Minute)
	_, ok, err = b.Get(ctx, "competitions")
	require.NoError(t, err)
	assert.False(t, ok)

	// "_" in the prefix must match literally.
	removed, err := b.InvalidatePrefix(ctx, "ranking:333_")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = b.InvalidatePrefix(ctx, RankingPrefix)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err = b.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, b.Invalidate(ctx, "rankingX"))
	n, err = b.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteBackend(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	dsn := filepath.Join(t.TempDir(), "cache.db")

	b, err := OpenBackend(context.Background(), KindSQLite, dsn, WithClock(clk))
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	runBackendSuite(t, b, clk)
}

func TestMemoryBackendSuite(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	runBackendSuite(t, NewMemory(WithClock(clk)), clk)
}
