package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
	"google.golang.org/api/option"

	"github.com/clearcard/sqljob/internal/model"
	"github.com/clearcard/sqljob/internal/objectstore"
	"github.com/clearcard/sqljob/internal/queue"
	"github.com/clearcard/sqljob/internal/statuscache"
)

type fakeJobsForWorker struct {
	mu   sync.Mutex
	rows map[string]*model.Job
}

func newFakeJobsForWorker(jobID string) *fakeJobsForWorker {
	return &fakeJobsForWorker{rows: map[string]*model.Job{
		jobID: {JobID: jobID, State: model.JobPending},
	}}
}

func (f *fakeJobsForWorker) Insert(_ context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.rows[job.JobID] = &cp
	return nil
}

func (f *fakeJobsForWorker) Update(_ context.Context, jobID string, fields model.JobFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[jobID]
	if !ok {
		return model.ErrNotFound
	}
	applyFields(row, fields)
	return nil
}

func (f *fakeJobsForWorker) UpdateIfPending(_ context.Context, jobID string, fields model.JobFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[jobID]
	if !ok || row.State != model.JobPending {
		return nil
	}
	applyFields(row, fields)
	return nil
}

func (f *fakeJobsForWorker) Get(_ context.Context, jobID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[jobID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeJobsForWorker) AppendEvent(_ context.Context, jobID, event, detail string) error {
	return nil
}

func applyFields(row *model.Job, f model.JobFields) {
	if f.State != nil {
		row.State = *f.State
	}
	if f.StartedAt != nil {
		row.StartedAt = f.StartedAt
	}
	if f.CompletedAt != nil {
		row.CompletedAt = f.CompletedAt
	}
	if f.RowCount != nil {
		row.RowCount = *f.RowCount
	}
	if f.Bytes != nil {
		row.Bytes = *f.Bytes
	}
	if f.GCSURI != nil {
		row.GCSURI = *f.GCSURI
	}
	if f.ErrorMsg != nil {
		row.ErrorMsg = *f.ErrorMsg
	}
}

func newTestUploader(t *testing.T) *objectstore.Uploader {
	t.Helper()
	server := fakestorage.NewServer([]fakestorage.Object{})
	t.Cleanup(server.Stop)
	client, err := storage.NewClient(context.Background(),
		option.WithHTTPClient(server.HTTPClient()),
		option.WithEndpoint(server.URL()+"/storage/v1/"),
	)
	require.NoError(t, err)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "test-bucket"})
	return objectstore.New(client, "test-bucket")
}

func sqliteOpener(dsn string) DBOpener {
	return func(_ time.Duration) (*sql.DB, error) {
		return sql.Open("sqlite", dsn)
	}
}

func seedRows(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS rows_t (a INTEGER, b TEXT)`)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := db.Exec(`INSERT INTO rows_t(a, b) VALUES (?, ?)`, i, "x")
		require.NoError(t, err)
	}
}

func newTestWorker(t *testing.T, dsn string) (*Worker, *fakeJobsForWorker, *statuscache.Cache, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := statuscache.New(rdb)
	q := queue.New(rdb)
	jobs := newFakeJobsForWorker("job-1")
	uploads := newTestUploader(t)

	w := New(q, jobs, cache, uploads, sqliteOpener(dsn), Config{
		DequeueTimeout: 50 * time.Millisecond,
		ChunkMaxBytes:  1024 * 1024,
		QueryTimeout:   5 * time.Second,
		ConnectTimeout: time.Second,
	}, zerolog.Nop())
	return w, jobs, cache, q
}

func TestProcessJob_HappyPath(t *testing.T) {
	setupDB, err := sql.Open("sqlite", "file:happy?mode=memory&cache=shared")
	require.NoError(t, err)
	defer setupDB.Close()
	seedRows(t, setupDB, 3)

	w, jobs, cache, _ := newTestWorker(t, "file:happy?mode=memory&cache=shared")

	err = w.processJob(context.Background(), model.QueuePayload{
		JobID:    "job-1",
		SQL:      "SELECT a, b FROM rows_t ORDER BY a",
		PageSize: 2,
		MaxRows:  100,
		Format:   "csv",
	})
	require.NoError(t, err)

	row, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, model.JobSucceeded, row.State)
	require.EqualValues(t, 3, row.RowCount)
	require.NotEmpty(t, row.GCSURI)

	snap, ok, err := cache.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobSucceeded, snap.State)
}

func TestProcessJob_CancelBeforeFirstBatch(t *testing.T) {
	setupDB, err := sql.Open("sqlite", "file:cancel?mode=memory&cache=shared")
	require.NoError(t, err)
	defer setupDB.Close()
	seedRows(t, setupDB, 10)

	w, jobs, cache, _ := newTestWorker(t, "file:cancel?mode=memory&cache=shared")
	require.NoError(t, cache.SetCancelled(context.Background(), "job-1"))

	err = w.processJob(context.Background(), model.QueuePayload{
		JobID:    "job-1",
		SQL:      "SELECT a, b FROM rows_t ORDER BY a",
		PageSize: 2,
		MaxRows:  100,
		Format:   "csv",
	})
	require.NoError(t, err)

	row, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, model.JobCancelled, row.State)
	require.Empty(t, row.GCSURI)
}

func TestProcessJob_DatabaseFailureMarksFailed(t *testing.T) {
	w, jobs, cache, _ := newTestWorker(t, "file:doesnotmatter?mode=memory")

	err := w.processJob(context.Background(), model.QueuePayload{
		JobID:    "job-1",
		SQL:      "SELECT * FROM no_such_table",
		PageSize: 2,
		MaxRows:  100,
		Format:   "csv",
	})
	require.Error(t, err)

	row, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, model.JobFailed, row.State)
	require.NotEmpty(t, row.ErrorMsg)

	snap, ok, err := cache.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.JobFailed, snap.State)
}

func TestProcessJob_MaxRowsCap(t *testing.T) {
	setupDB, err := sql.Open("sqlite", "file:maxrows?mode=memory&cache=shared")
	require.NoError(t, err)
	defer setupDB.Close()
	seedRows(t, setupDB, 100)

	w, jobs, _, _ := newTestWorker(t, "file:maxrows?mode=memory&cache=shared")

	err = w.processJob(context.Background(), model.QueuePayload{
		JobID:    "job-1",
		SQL:      "SELECT a, b FROM rows_t ORDER BY a",
		PageSize: 10,
		MaxRows:  3,
		Format:   "csv",
	})
	require.NoError(t, err)

	row, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, model.JobSucceeded, row.State)
	require.EqualValues(t, 3, row.RowCount)
}

func TestParseJSONOrString(t *testing.T) {
	require.Nil(t, parseJSONOrString(""))
	require.Equal(t, "not json", parseJSONOrString("not json"))

	v := parseJSONOrString(`{"a":1}`)
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(b))
}
