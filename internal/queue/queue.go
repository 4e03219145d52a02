// Package queue implements the Job Queue (spec component D): a FIFO
// handoff of ready-to-run job payloads from the broker to workers, backed
// by a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearcard/sqljob/internal/model"
)

const listKey = "jobs:queue"

// Queue is the Job Queue. At-least-once: a payload popped here has no
// further durability guarantee; reconciling a worker crash between
// dequeue and the first metadata-store write is out of scope (operators
// sweep abandoned PENDING rows out of band).
type Queue struct {
	rdb *redis.Client
}

// New wraps an already-configured *redis.Client.
func New(rdb *redis.Client) *Queue { return &Queue{rdb: rdb} }

// NewFromURL parses a redis:// URL and dials a client.
func NewFromURL(url string) (*Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Queue{rdb: redis.NewClient(opt)}, nil
}

// Enqueue pushes a payload to the head of the list.
func (q *Queue) Enqueue(ctx context.Context, payload model.QueuePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, listKey, body).Err()
}

// DequeueBlocking pops from the tail, blocking up to timeout. Returns
// (nil, nil) on timeout with no item available.
func (q *Queue) DequeueBlocking(ctx context.Context, timeout time.Duration) (*model.QueuePayload, error) {
	res, err := q.rdb.BRPop(ctx, timeout, listKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPop returns [key, value].
	var payload model.QueuePayload
	if err := json.Unmarshal([]byte(res[1]), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// HealthPing implements health.HealthPinger.
func (q *Queue) HealthPing(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
