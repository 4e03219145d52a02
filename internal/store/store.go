package store

import (
	"context"

	"github.com/clearcard/sqljob/internal/model"
)

// Store defines the persistence surface consumed by the broker and worker.
// It hides concrete database details behind simple method contracts;
// drivers (e.g. Postgres) live under internal/store/<driver>/ and implement
// this interface.
//
// Connection discipline: each logical operation opens and closes its own
// connection (or borrows one from a pool scoped to the caller); the Store
// itself holds no long-lived cursor state between calls.
type Store interface {
	Jobs() Jobs
}

// Jobs is the Metadata Store (spec component B): the durable, queryable
// record of every job plus its append-only event log.
type Jobs interface {
	// Insert writes a new PENDING row. Fails if job.JobID collides with an
	// existing row; collisions are treated as fatal since job IDs are
	// 128-bit random.
	Insert(ctx context.Context, job *model.Job) error

	// Update applies a partial update. Only non-nil fields are written.
	Update(ctx context.Context, jobID string, fields model.JobFields) error

	// UpdateIfPending applies fields only when the stored state is
	// currently PENDING; it is a silent no-op otherwise. Used by Cancel,
	// whose write must not clobber a worker that has already advanced the
	// job past PENDING.
	UpdateIfPending(ctx context.Context, jobID string, fields model.JobFields) error

	// Get returns the full row, or (nil, model.ErrNotFound).
	Get(ctx context.Context, jobID string) (*model.Job, error)

	// AppendEvent inserts one unconditional audit row.
	AppendEvent(ctx context.Context, jobID, event, detail string) error
}
