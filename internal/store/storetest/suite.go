// Package storetest provides a reusable compliance suite for store.Store
// implementations. Each driver package (e.g. postgres) wires its own
// makeStore constructor and calls Run from an integration test.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clearcard/sqljob/internal/model"
	"github.com/clearcard/sqljob/internal/store"
)

// Run exercises a minimal compliance suite against a store.Store
// implementation. Implementations should provide a clean, isolated store
// and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	jobs := s.Jobs()

	jobID := "j-" + uuid.New().String()
	job := &model.Job{
		JobID:       jobID,
		UserID:      model.DefaultUserID,
		SubmittedAt: time.Now().UTC(),
		State:       model.JobPending,
		SQLText:     "SELECT 1",
		SQLHash:     "deadbeef",
		Format:      model.DefaultFormat,
		PageSize:    model.DefaultPageSize,
		MaxRows:     model.DefaultMaxRows,
		Title:       "compliance-suite",
	}
	if err := jobs.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get after Insert: %v", err)
	}
	if got.State != model.JobPending || got.SQLText != "SELECT 1" || got.Title != "compliance-suite" {
		t.Fatalf("Get after Insert: unexpected row %+v", got)
	}
	if got.GCSURI != "" || got.ErrorMsg != "" {
		t.Fatalf("Get after Insert: expected empty optional fields, got %+v", got)
	}

	// UpdateIfPending must apply while the job is still PENDING.
	running := model.JobRunning
	startedAt := time.Now().UTC()
	if err := jobs.UpdateIfPending(ctx, jobID, model.JobFields{
		State:     &running,
		StartedAt: &startedAt,
	}); err != nil {
		t.Fatalf("UpdateIfPending (pending->running): %v", err)
	}
	got, err = jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get after UpdateIfPending: %v", err)
	}
	if got.State != model.JobRunning || got.StartedAt == nil {
		t.Fatalf("UpdateIfPending did not apply: %+v", got)
	}

	// A second UpdateIfPending must now be a silent no-op: the row is no
	// longer PENDING, so a late cancel request must not clobber it.
	cancelled := model.JobCancelled
	if err := jobs.UpdateIfPending(ctx, jobID, model.JobFields{State: &cancelled}); err != nil {
		t.Fatalf("UpdateIfPending (no-op case): %v", err)
	}
	got, err = jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get after no-op UpdateIfPending: %v", err)
	}
	if got.State != model.JobRunning {
		t.Fatalf("UpdateIfPending clobbered a non-PENDING row: state=%s", got.State)
	}

	// Update applies unconditionally, regardless of current state.
	var rowCount, bytes int64 = 42, 1024
	gcsURI := "gs://bucket/prefix/manifest.json"
	completedAt := time.Now().UTC()
	succeeded := model.JobSucceeded
	if err := jobs.Update(ctx, jobID, model.JobFields{
		State:       &succeeded,
		CompletedAt: &completedAt,
		RowCount:    &rowCount,
		Bytes:       &bytes,
		GCSURI:      &gcsURI,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get after Update: %v", err)
	}
	if got.State != model.JobSucceeded || got.RowCount != rowCount || got.Bytes != bytes || got.GCSURI != gcsURI || got.CompletedAt == nil {
		t.Fatalf("Update did not apply fully: %+v", got)
	}

	// AppendEvent is unconditional audit logging; it must not error and
	// must not perturb the job row itself.
	if err := jobs.AppendEvent(ctx, jobID, "SUBMITTED", ""); err != nil {
		t.Fatalf("AppendEvent (empty detail): %v", err)
	}
	if err := jobs.AppendEvent(ctx, jobID, "FAILED", "connection reset"); err != nil {
		t.Fatalf("AppendEvent (with detail): %v", err)
	}

	// Get on an unknown job_id must return model.ErrNotFound.
	if _, err := jobs.Get(ctx, "j-"+uuid.New().String()); err != model.ErrNotFound {
		t.Fatalf("Get on unknown job: expected ErrNotFound, got %v", err)
	}
}
