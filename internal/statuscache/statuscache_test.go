package statuscache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clearcard/sqljob/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestSetStatus_RoundTrips(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.SetStatus(ctx, "job-1", model.StatusSnapshot{State: model.JobRunning, Rows: 10, Bytes: 1024})
	require.NoError(t, err)

	snap, ok, err := c.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobRunning, snap.State)
	require.EqualValues(t, 10, snap.Rows)
	require.NotZero(t, snap.UpdatedAt)
}

func TestSetStatus_OverwritesRatherThanMerges(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetStatus(ctx, "job-1", model.StatusSnapshot{State: model.JobRunning, Rows: 10}))
	require.NoError(t, c.SetStatus(ctx, "job-1", model.StatusSnapshot{State: model.JobSucceeded, Rows: 20}))

	snap, ok, err := c.GetStatus(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobSucceeded, snap.State)
	require.EqualValues(t, 20, snap.Rows)
}

func TestGetStatus_MissReturnsFalseNoError(t *testing.T) {
	c := newTestCache(t)
	_, ok, err := c.GetStatus(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCancelSignal(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	cancelled, err := c.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	require.False(t, cancelled)

	require.NoError(t, c.SetCancelled(ctx, "job-1"))

	cancelled, err = c.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, cancelled)
}
