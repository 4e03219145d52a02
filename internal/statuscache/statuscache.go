// Package statuscache implements the Status Cache (spec component C): a
// low-latency ephemeral mirror of job state plus the cross-process cancel
// signal, backed by Redis.
package statuscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearcard/sqljob/internal/model"
)

const (
	statusTTL = 24 * time.Hour
	cancelTTL = time.Hour
)

// Cache is the Status Cache. All writes are last-writer-wins SET-with-expiry;
// no merge, no CAS.
type Cache struct {
	rdb *redis.Client
}

// New wraps an already-configured *redis.Client.
func New(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

// NewFromURL parses a redis:// URL and dials a client, grounded on the
// same REDIS_URL convention the job queue uses.
func NewFromURL(url string) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Cache{rdb: redis.NewClient(opt)}, nil
}

func statusKey(jobID string) string { return "jobs:status:" + jobID }
func cancelKey(jobID string) string { return "jobs:cancelled:" + jobID }

// SetStatus overwrites the status snapshot with a fresh TTL. No merge with
// any prior value: the caller supplies the full snapshot each time.
func (c *Cache) SetStatus(ctx context.Context, jobID string, snap model.StatusSnapshot) error {
	snap.UpdatedAt = time.Now().Unix()
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(jobID), body, statusTTL).Err()
}

// GetStatus returns (snapshot, true, nil) on hit, (zero, false, nil) on a
// clean miss, and (zero, false, err) on an infrastructure failure.
func (c *Cache) GetStatus(ctx context.Context, jobID string) (model.StatusSnapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, statusKey(jobID)).Bytes()
	if err == redis.Nil {
		return model.StatusSnapshot{}, false, nil
	}
	if err != nil {
		return model.StatusSnapshot{}, false, err
	}
	var snap model.StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.StatusSnapshot{}, false, err
	}
	return snap, true, nil
}

// SetCancelled raises the cancel signal. Advisory: workers poll it at
// batch boundaries rather than being interrupted.
func (c *Cache) SetCancelled(ctx context.Context, jobID string) error {
	return c.rdb.Set(ctx, cancelKey(jobID), "1", cancelTTL).Err()
}

// IsCancelled reports whether the cancel signal is currently set.
func (c *Cache) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	v, err := c.rdb.Get(ctx, cancelKey(jobID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// HealthPing implements health.HealthPinger.
func (c *Cache) HealthPing(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
