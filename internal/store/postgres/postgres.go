// Package postgres implements the Metadata Store (spec component B) on
// top of database/sql via the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clearcard/sqljob/internal/model"
	"github.com/clearcard/sqljob/internal/store"
)

// Open opens a connection using the pgx stdlib driver and verifies
// connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("metadata store DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap performs a connectivity check and returns an error when the
// metadata store is unreachable. An empty DSN is not checked.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

// NewWithDB constructs a Store backed directly by an open *sql.DB.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Jobs() store.Jobs { return &jobs{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type jobs struct{ db *sql.DB }

func (j *jobs) Insert(ctx context.Context, job *model.Job) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO jobs (
			job_id, user_id, submitted_at, state, sql_text, sql_hash, format,
			page_size, max_rows, title, table_config, chart_config
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		job.JobID, job.UserID, job.SubmittedAt, job.State, job.SQLText, job.SQLHash,
		job.Format, job.PageSize, job.MaxRows, job.Title, job.TableConfig, job.ChartConfig)
	return err
}

func (j *jobs) Update(ctx context.Context, jobID string, fields model.JobFields) error {
	sets, args := buildSets(fields)
	if len(sets) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE job_id=$%d`, joinSets(sets), len(args)+1)
	args = append(args, jobID)
	_, err := j.db.ExecContext(ctx, query, args...)
	return err
}

func (j *jobs) UpdateIfPending(ctx context.Context, jobID string, fields model.JobFields) error {
	sets, args := buildSets(fields)
	if len(sets) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE job_id=$%d AND state='PENDING'`, joinSets(sets), len(args)+1)
	args = append(args, jobID)
	_, err := j.db.ExecContext(ctx, query, args...)
	return err
}

func (j *jobs) Get(ctx context.Context, jobID string) (*model.Job, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT job_id, user_id, submitted_at, started_at, completed_at, state,
		       sql_text, sql_hash, format, page_size, max_rows, row_count, bytes,
		       gcs_uri, error_message, title, table_config, chart_config
		FROM jobs WHERE job_id=$1
	`, jobID)

	var out model.Job
	var started, completed *time.Time
	var gcsURI, errMsg, title, tableConfig, chartConfig *string
	if err := row.Scan(
		&out.JobID, &out.UserID, &out.SubmittedAt, &started, &completed, &out.State,
		&out.SQLText, &out.SQLHash, &out.Format, &out.PageSize, &out.MaxRows, &out.RowCount, &out.Bytes,
		&gcsURI, &errMsg, &title, &tableConfig, &chartConfig,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	out.StartedAt = started
	out.CompletedAt = completed
	out.GCSURI = strOrEmpty(gcsURI)
	out.ErrorMsg = strOrEmpty(errMsg)
	out.Title = strOrEmpty(title)
	out.TableConfig = strOrEmpty(tableConfig)
	out.ChartConfig = strOrEmpty(chartConfig)
	return &out, nil
}

func (j *jobs) AppendEvent(ctx context.Context, jobID, event, detail string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO job_events (job_id, event, detail, wall_clock) VALUES ($1,$2,$3,now())
	`, jobID, event, nullIfEmpty(detail))
	return err
}

func buildSets(f model.JobFields) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if f.State != nil {
		add("state", *f.State)
	}
	if f.StartedAt != nil {
		add("started_at", *f.StartedAt)
	}
	if f.CompletedAt != nil {
		add("completed_at", *f.CompletedAt)
	}
	if f.RowCount != nil {
		add("row_count", *f.RowCount)
	}
	if f.Bytes != nil {
		add("bytes", *f.Bytes)
	}
	if f.GCSURI != nil {
		add("gcs_uri", *f.GCSURI)
	}
	if f.ErrorMsg != nil {
		add("error_message", *f.ErrorMsg)
	}
	return sets, args
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
