package postgres

// Schema is the DDL for the jobs and job_events tables. Compose migrations
// apply it in dev/e2e environments; production environments own their own
// migration pipeline.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id        TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	submitted_at  TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	state         TEXT NOT NULL,
	sql_text      TEXT NOT NULL,
	sql_hash      TEXT NOT NULL,
	format        TEXT NOT NULL,
	page_size     INTEGER NOT NULL,
	max_rows      INTEGER NOT NULL,
	row_count     BIGINT NOT NULL DEFAULT 0,
	bytes         BIGINT NOT NULL DEFAULT 0,
	gcs_uri       TEXT,
	error_message TEXT,
	title         TEXT,
	table_config  TEXT,
	chart_config  TEXT
);

CREATE TABLE IF NOT EXISTS job_events (
	id         BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(job_id),
	event      TEXT NOT NULL,
	detail     TEXT,
	wall_clock TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS job_events_job_id_idx ON job_events(job_id);
`
