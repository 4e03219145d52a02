// Package worker implements the Worker Loop (spec component H): it
// dequeues from the Job Queue, drives a database cursor, feeds the
// Chunked CSV Encoder, polls the cancel signal, and updates the
// Metadata Store and Status Cache at each state transition.
//
// Structured the way internal/outbox's polling loop is, but without a
// ticker: Run blocks on dequeue, calls a single per-job method, and
// logs-and-continues on error, so one bad job never kills the process.
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearcard/sqljob/internal/csvchunk"
	"github.com/clearcard/sqljob/internal/dbquery"
	"github.com/clearcard/sqljob/internal/model"
	"github.com/clearcard/sqljob/internal/objectstore"
	"github.com/clearcard/sqljob/internal/queue"
	"github.com/clearcard/sqljob/internal/sqlnorm"
	"github.com/clearcard/sqljob/internal/statuscache"
	"github.com/clearcard/sqljob/internal/store"
)

// Config controls dequeue cadence, chunk rotation, and the target
// database's query behavior.
type Config struct {
	DequeueTimeout   time.Duration // block duration per BRPOP attempt
	ChunkMaxBytes    int64         // rotate a chunk at or above this size
	QueryTimeout     time.Duration // applied to the worker's own SELECT
	ConnectTimeout   time.Duration // applied to per-job database connections
	StatusFlushEvery time.Duration // minimum interval between RUNNING cache writes
}

func (c *Config) setDefaults() {
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 5 * time.Second
	}
	if c.ChunkMaxBytes <= 0 {
		c.ChunkMaxBytes = 100 * 1024 * 1024
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 300 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.StatusFlushEvery <= 0 {
		c.StatusFlushEvery = 2 * time.Second
	}
}

// DBOpener dials a fresh connection to the target database that job SQL
// runs against. Abstracted so tests can substitute an in-memory driver.
type DBOpener func(connectTimeout time.Duration) (*sql.DB, error)

// Worker drains the Job Queue and runs each job to a terminal state.
type Worker struct {
	queue   *queue.Queue
	jobs    store.Jobs
	cache   *statuscache.Cache
	uploads *objectstore.Uploader
	openDB  DBOpener
	cfg     Config
	log     zerolog.Logger
}

// New constructs a Worker from its dependencies.
func New(q *queue.Queue, jobs store.Jobs, cache *statuscache.Cache, uploads *objectstore.Uploader, openDB DBOpener, cfg Config, log zerolog.Logger) *Worker {
	cfg.setDefaults()
	return &Worker{queue: q, jobs: jobs, cache: cache, uploads: uploads, openDB: openDB, cfg: cfg, log: log}
}

// Run is the endless per-process loop (4.H): dequeue, process, repeat,
// until ctx is canceled. Multiple Worker processes may run concurrently
// against the same queue.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("dequeue_timeout", w.cfg.DequeueTimeout).Msg("worker loop starting")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker loop stopping")
			return ctx.Err()
		default:
		}

		payload, err := w.queue.DequeueBlocking(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			w.log.Error().Err(err).Msg("dequeue failed")
			continue
		}
		if payload == nil {
			continue
		}
		if err := w.processJob(ctx, *payload); err != nil {
			w.log.Error().Err(err).Str("job_id", payload.JobID).Msg("process job")
		}
	}
}

// processJob runs one dequeued payload through steps 2-10 of 4.H.
func (w *Worker) processJob(ctx context.Context, payload model.QueuePayload) error {
	jobID := payload.JobID
	sqlText := sqlnorm.Normalize(payload.SQL)

	db, err := w.openDB(w.cfg.ConnectTimeout)
	if err != nil {
		return w.fail(ctx, jobID, 0, 0, err)
	}
	defer func() { _ = db.Close() }()

	startedAt := time.Now().UTC()
	_ = w.jobs.AppendEvent(ctx, jobID, "RUNNING", payload.RequestID)
	running := model.JobRunning
	if err := w.jobs.Update(ctx, jobID, model.JobFields{State: &running, StartedAt: &startedAt}); err != nil {
		return w.fail(ctx, jobID, 0, 0, err)
	}
	w.writeStatus(ctx, jobID, model.JobRunning, 0, 0, "")

	cursor, cancelQuery, err := dbquery.Execute(ctx, db, sqlText, w.cfg.QueryTimeout)
	if err != nil {
		return w.fail(ctx, jobID, 0, 0, err)
	}
	defer cancelQuery()
	defer func() { _ = cursor.Close() }()

	columns := cursor.Columns()
	prefix := objectstore.PrefixFor(jobID)
	builder := csvchunk.New()

	var rowCount int64
	var totalBytes int64
	var chunks []model.ChunkDescriptor
	var nextIdx int
	lastFlush := time.Now()

	rotateAndUpload := func() error {
		data, rows, err := builder.Rotate()
		if err != nil {
			return err
		}
		if rows <= 0 {
			return nil
		}
		uri, err := w.uploads.UploadChunk(ctx, prefix, nextIdx, data)
		if err != nil {
			return err
		}
		chunks = append(chunks, model.ChunkDescriptor{URI: uri, Rows: rows, Bytes: int64(len(data))})
		totalBytes += int64(len(data))
		nextIdx++
		return nil
	}

	for {
		cancelled, err := w.cache.IsCancelled(ctx, jobID)
		if err != nil {
			w.log.Warn().Err(err).Str("job_id", jobID).Msg("cancel signal read failed")
		}
		if cancelled {
			return w.finalizeCancelled(ctx, jobID, builder, prefix, rowCount, &totalBytes, &chunks, &nextIdx)
		}

		fetchSize := payload.PageSize
		if remaining := int64(payload.MaxRows) - rowCount; remaining < int64(fetchSize) {
			fetchSize = int(remaining)
		}
		if fetchSize <= 0 {
			break
		}
		batch, err := cursor.FetchBatch(fetchSize)
		if err != nil {
			return w.fail(ctx, jobID, rowCount, totalBytes, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, row := range batch {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = csvchunk.CellToString(v)
			}
			if err := builder.WriteRow(cells); err != nil {
				return w.fail(ctx, jobID, rowCount, totalBytes, err)
			}
		}
		rowCount += int64(len(batch))

		if time.Since(lastFlush) > w.cfg.StatusFlushEvery {
			w.writeStatus(ctx, jobID, model.JobRunning, rowCount, totalBytes, "")
			lastFlush = time.Now()
		}

		bytesBuffered, err := builder.BytesBuffered()
		if err != nil {
			return w.fail(ctx, jobID, rowCount, totalBytes, err)
		}
		if int64(bytesBuffered) >= w.cfg.ChunkMaxBytes || rowCount >= int64(payload.MaxRows) {
			if err := rotateAndUpload(); err != nil {
				return w.fail(ctx, jobID, rowCount, totalBytes, err)
			}
			if rowCount >= int64(payload.MaxRows) {
				break
			}
		}
	}

	data, rows, err := builder.Close()
	if err != nil {
		return w.fail(ctx, jobID, rowCount, totalBytes, err)
	}
	if rows > 0 {
		uri, err := w.uploads.UploadChunk(ctx, prefix, nextIdx, data)
		if err != nil {
			return w.fail(ctx, jobID, rowCount, totalBytes, err)
		}
		chunks = append(chunks, model.ChunkDescriptor{URI: uri, Rows: rows, Bytes: int64(len(data))})
		totalBytes += int64(len(data))
	}

	manifest := model.Manifest{
		Columns:     columns,
		RowCount:    rowCount,
		Format:      payload.Format,
		Compression: "gzip",
		Chunks:      chunks,
		Meta: model.ManifestMeta{
			Title:       payload.Title,
			TableConfig: parseJSONOrString(payload.TableConfig),
			ChartConfig: parseJSONOrString(payload.ChartConfig),
		},
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return w.fail(ctx, jobID, rowCount, totalBytes, err)
	}
	manifestURI, err := w.uploads.UploadManifest(ctx, prefix, manifestBytes)
	if err != nil {
		return w.fail(ctx, jobID, rowCount, totalBytes, err)
	}

	completedAt := time.Now().UTC()
	_ = w.jobs.AppendEvent(ctx, jobID, "SUCCEEDED", "")
	succeeded := model.JobSucceeded
	if err := w.jobs.Update(ctx, jobID, model.JobFields{
		State:       &succeeded,
		CompletedAt: &completedAt,
		RowCount:    &rowCount,
		Bytes:       &totalBytes,
		GCSURI:      &manifestURI,
	}); err != nil {
		w.log.Error().Err(err).Str("job_id", jobID).Msg("mark succeeded failed")
	}
	w.writeStatus(ctx, jobID, model.JobSucceeded, rowCount, totalBytes, "")
	return nil
}

// finalizeCancelled flushes the current chunk and uploads it as the final
// part if it holds any rows (an empty chunk is not uploaded, and an upload
// error is ignored), then transitions the job to CANCELLED.
func (w *Worker) finalizeCancelled(ctx context.Context, jobID string, builder *csvchunk.ChunkBuilder, prefix string, rowCount int64, totalBytes *int64, chunks *[]model.ChunkDescriptor, nextIdx *int) error {
	data, rows, err := builder.Close()
	if err == nil && rows > 0 {
		if uri, uerr := w.uploads.UploadChunk(ctx, prefix, *nextIdx, data); uerr == nil {
			*chunks = append(*chunks, model.ChunkDescriptor{URI: uri, Rows: rows, Bytes: int64(len(data))})
			*totalBytes += int64(len(data))
		}
	}

	completedAt := time.Now().UTC()
	_ = w.jobs.AppendEvent(ctx, jobID, "CANCELLED", "cancel flag set")
	cancelled := model.JobCancelled
	if uerr := w.jobs.Update(ctx, jobID, model.JobFields{
		State:       &cancelled,
		CompletedAt: &completedAt,
		RowCount:    &rowCount,
		Bytes:       totalBytes,
	}); uerr != nil {
		w.log.Error().Err(uerr).Str("job_id", jobID).Msg("mark cancelled failed")
	}
	w.writeStatus(ctx, jobID, model.JobCancelled, rowCount, *totalBytes, "")
	return nil
}

// fail absorbs any database/storage/encoding failure into a single
// terminal FAILED transition, per 4.H's catch-all. The metadata store
// connection is independent of the job's query connection, so a
// poisoned job connection never blocks this write.
func (w *Worker) fail(ctx context.Context, jobID string, rowCount, totalBytes int64, cause error) error {
	msg := truncate(cause.Error(), model.ErrorMessageLimit)

	_ = w.jobs.AppendEvent(ctx, jobID, "FAILED", msg)
	completedAt := time.Now().UTC()
	failed := model.JobFailed
	if err := w.jobs.Update(ctx, jobID, model.JobFields{
		State:       &failed,
		CompletedAt: &completedAt,
		ErrorMsg:    &msg,
	}); err != nil {
		w.log.Error().Err(err).Str("job_id", jobID).Msg("mark failed failed")
	}
	w.writeStatus(ctx, jobID, model.JobFailed, rowCount, totalBytes, msg)
	return cause
}

func (w *Worker) writeStatus(ctx context.Context, jobID string, state model.JobState, rows, bytes int64, errMsg string) {
	if err := w.cache.SetStatus(ctx, jobID, model.StatusSnapshot{State: state, Rows: rows, Bytes: bytes, Error: errMsg}); err != nil {
		w.log.Warn().Err(err).Str("job_id", jobID).Msg("status cache write failed")
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func parseJSONOrString(s string) interface{} {
	if s == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

