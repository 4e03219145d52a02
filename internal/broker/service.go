// Package broker implements the Broker Service (spec component E): it
// accepts Submit/GetStatus/GetResultManifest/Cancel, writes the Metadata
// Store, Status Cache, and Job Queue, and is the sole writer of a job's
// PENDING row.
package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clearcard/sqljob/internal/model"
	"github.com/clearcard/sqljob/internal/queue"
	"github.com/clearcard/sqljob/internal/sqlnorm"
	"github.com/clearcard/sqljob/internal/statuscache"
	"github.com/clearcard/sqljob/internal/store"
)

// SubmitOptions carries the caller-tunable knobs for Submit, defaulted by
// the Service when zero.
type SubmitOptions struct {
	PageSize int
	MaxRows  int
	Format   string
}

// SubmitRequest is everything Submit needs from a caller.
type SubmitRequest struct {
	SQL         string
	Options     SubmitOptions
	Title       string
	TableConfig string
	ChartConfig string
	UserID      string
	RequestID   string
}

// Status is the RPC-facing shape returned by GetStatus and Cancel.
type Status struct {
	JobID       string
	State       model.JobState
	RowCount    int64
	Bytes       int64
	ErrorMsg    string
	SubmittedAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ManifestRef is the RPC-facing shape returned by GetResultManifest.
type ManifestRef struct {
	GCSManifestURI string
	Status         string // "OK" or "ERROR"
	ErrorMessage   string
}

// Service is the Broker Service. It is safe for concurrent use: Submit is
// the sole writer of a job's PENDING row, and Cancel's metadata write is
// conditional, so no per-job locking is required.
type Service struct {
	jobs      store.Jobs
	cache     *statuscache.Cache
	queue     *queue.Queue
	gcsBucket string
	log       zerolog.Logger
}

// New constructs a Service from its three stores plus the GCS bucket
// written into every dispatch payload.
func New(jobs store.Jobs, cache *statuscache.Cache, q *queue.Queue, gcsBucket string, log zerolog.Logger) *Service {
	return &Service{jobs: jobs, cache: cache, queue: q, gcsBucket: gcsBucket, log: log}
}

// ErrJobNotFound is returned by GetStatus/GetResultManifest/Cancel for an
// unknown job_id.
var ErrJobNotFound = model.ErrNotFound

// Submit registers a new job: normalize, insert PENDING into the
// Metadata Store, mirror PENDING into the Status Cache, and enqueue the
// dispatch payload.
//
// Failure handling follows 4.E: a Metadata Store insert failure aborts
// before enqueueing. A Status Cache write failure after insert is logged
// and ignored (the cache is advisory). A Job Queue failure after insert
// is surfaced to the caller; the row remains PENDING for out-of-band
// reconciliation.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (jobID string, err error) {
	jobID = uuid.New().String()
	userID := req.UserID
	if userID == "" {
		userID = model.DefaultUserID
	}

	sqlText := sqlnorm.Normalize(req.SQL)
	sqlHash := hashSQL(sqlText)

	pageSize := req.Options.PageSize
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	maxRows := req.Options.MaxRows
	if maxRows <= 0 {
		maxRows = model.DefaultMaxRows
	}
	format := req.Options.Format
	if format == "" {
		format = model.DefaultFormat
	}

	job := &model.Job{
		JobID:       jobID,
		UserID:      userID,
		SubmittedAt: time.Now().UTC(),
		State:       model.JobPending,
		SQLText:     sqlText,
		SQLHash:     sqlHash,
		Format:      format,
		PageSize:    pageSize,
		MaxRows:     maxRows,
		Title:       req.Title,
		TableConfig: req.TableConfig,
		ChartConfig: req.ChartConfig,
	}
	if err := s.jobs.Insert(ctx, job); err != nil {
		return "", errors.Wrap(err, "insert job")
	}

	if err := s.cache.SetStatus(ctx, jobID, model.StatusSnapshot{State: model.JobPending}); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("status cache write failed after submit")
	}

	payload := model.QueuePayload{
		JobID:       jobID,
		UserID:      userID,
		SQL:         sqlText,
		PageSize:    pageSize,
		MaxRows:     maxRows,
		Format:      format,
		GCSBucket:   s.gcsBucket,
		Title:       req.Title,
		TableConfig: req.TableConfig,
		ChartConfig: req.ChartConfig,
		RequestID:   req.RequestID,
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		return "", errors.Wrap(err, "enqueue job")
	}

	return jobID, nil
}

// GetStatus reads the Status Cache first; on a clean miss it falls back
// to the Metadata Store, which is always authoritative.
func (s *Service) GetStatus(ctx context.Context, jobID string) (Status, error) {
	if snap, ok, err := s.cache.GetStatus(ctx, jobID); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("status cache read failed")
	} else if ok {
		return Status{
			JobID:    jobID,
			State:    snap.State,
			RowCount: snap.Rows,
			Bytes:    snap.Bytes,
			ErrorMsg: snap.Error,
		}, nil
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	return statusFromJob(job), nil
}

// GetResultManifest reads the Metadata Store directly; the manifest URI
// is only meaningful once the worker has flipped the row to SUCCEEDED.
func (s *Service) GetResultManifest(ctx context.Context, jobID string) (ManifestRef, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return ManifestRef{}, err
	}
	if job.State != model.JobSucceeded || job.GCSURI == "" {
		errMsg := job.ErrorMsg
		if errMsg == "" {
			errMsg = fmt.Sprintf("job state: %s", job.State)
		}
		return ManifestRef{Status: "ERROR", ErrorMessage: errMsg}, nil
	}
	return ManifestRef{GCSManifestURI: job.GCSURI, Status: "OK"}, nil
}

// Cancel raises the cancel signal unconditionally, then conditionally
// flips the Metadata Store row to CANCELLED only if it is still PENDING.
// A worker that has already advanced the job past PENDING will observe
// the signal itself and transition at the next checkpoint.
func (s *Service) Cancel(ctx context.Context, jobID string) (Status, error) {
	if err := s.cache.SetCancelled(ctx, jobID); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("cancel signal write failed")
	}

	cancelled := model.JobCancelled
	if err := s.jobs.UpdateIfPending(ctx, jobID, model.JobFields{State: &cancelled}); err != nil {
		return Status{}, errors.Wrap(err, "cancel job")
	}

	// Mirror a CANCELLED row into the cache so the cache-first status read
	// below does not return the PENDING snapshot written by Submit.
	if job, err := s.jobs.Get(ctx, jobID); err == nil && job.State == model.JobCancelled {
		snap := model.StatusSnapshot{State: model.JobCancelled, Rows: job.RowCount, Bytes: job.Bytes}
		if err := s.cache.SetStatus(ctx, jobID, snap); err != nil {
			s.log.Warn().Err(err).Str("job_id", jobID).Msg("status cache write failed after cancel")
		}
	}

	return s.GetStatus(ctx, jobID)
}

func statusFromJob(job *model.Job) Status {
	return Status{
		JobID:       job.JobID,
		State:       job.State,
		RowCount:    job.RowCount,
		Bytes:       job.Bytes,
		ErrorMsg:    job.ErrorMsg,
		SubmittedAt: &job.SubmittedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func hashSQL(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
