package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clearcard/sqljob/internal/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestEnqueueDequeue_FIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.QueuePayload{JobID: "first"}))
	require.NoError(t, q.Enqueue(ctx, model.QueuePayload{JobID: "second"}))

	got, err := q.DequeueBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "first", got.JobID)

	got, err = q.DequeueBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "second", got.JobID)
}

func TestDequeueBlocking_TimeoutReturnsNilNil(t *testing.T) {
	q := newTestQueue(t)
	got, err := q.DequeueBlocking(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, got)
}
