package model

import "time"

// JobState is one of the five states in the job lifecycle state machine.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
)

// Terminal reports whether s is one of the absorbing states.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

const (
	// DefaultUserID is substituted when Submit omits user_id.
	DefaultUserID = "anonymous"
	// DefaultPageSize is the row batch size fetched per database round-trip.
	DefaultPageSize = 5000
	// DefaultMaxRows is the hard cap on rows emitted by a single job.
	DefaultMaxRows = 5_000_000
	// DefaultFormat is the only result format this service knows how to produce.
	DefaultFormat = "csv"
	// ErrorMessageLimit truncates FAILED error_message to fit the metadata column.
	ErrorMessageLimit = 1900
)

// Job is the authoritative record of one deferred SQL execution.
type Job struct {
	JobID       string     `json:"jobId"`
	UserID      string     `json:"userId"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	State       JobState   `json:"state"`
	SQLText     string     `json:"sqlText"`
	SQLHash     string     `json:"sqlHash"`
	Format      string     `json:"format"`
	PageSize    int        `json:"pageSize"`
	MaxRows     int        `json:"maxRows"`
	RowCount    int64      `json:"rowCount"`
	Bytes       int64      `json:"bytes"`
	GCSURI      string     `json:"gcsUri,omitempty"`
	ErrorMsg    string     `json:"errorMessage,omitempty"`
	Title       string     `json:"title,omitempty"`
	TableConfig string     `json:"tableConfig,omitempty"`
	ChartConfig string     `json:"chartConfig,omitempty"`
}

// JobEvent is one append-only audit row for a state transition.
type JobEvent struct {
	JobID     string    `json:"jobId"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	WallClock time.Time `json:"wallClock"`
}

// StatusSnapshot is the short-lived mirror kept in the status cache.
// It lags the metadata store but serves low-latency reads.
type StatusSnapshot struct {
	State     JobState `json:"state"`
	Rows      int64    `json:"rows"`
	Bytes     int64    `json:"bytes"`
	Error     string   `json:"error,omitempty"`
	UpdatedAt int64    `json:"updated_at"`
}

// JobFields is a partial update applied to a Job row. Nil pointers leave the
// corresponding column untouched.
type JobFields struct {
	State       *JobState
	StartedAt   *time.Time
	CompletedAt *time.Time
	RowCount    *int64
	Bytes       *int64
	GCSURI      *string
	ErrorMsg    *string
}

// ChunkDescriptor is one entry in a Manifest's chunk list.
type ChunkDescriptor struct {
	URI   string `json:"uri"`
	Rows  int64  `json:"rows"`
	Bytes int64  `json:"bytes"`
}

// ManifestMeta carries the optional presentation metadata attached at Submit.
type ManifestMeta struct {
	Title       string      `json:"title,omitempty"`
	TableConfig interface{} `json:"table_config,omitempty"`
	ChartConfig interface{} `json:"chart_config,omitempty"`
}

// Manifest is the JSON document published to object storage on success.
type Manifest struct {
	Columns     []string          `json:"columns"`
	RowCount    int64             `json:"row_count"`
	Format      string            `json:"format"`
	Compression string            `json:"compression"`
	Chunks      []ChunkDescriptor `json:"chunks"`
	Meta        ManifestMeta      `json:"meta"`
}

// QueuePayload is the JSON object handed from the broker to a worker through
// the job queue.
type QueuePayload struct {
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	SQL         string `json:"sql"`
	PageSize    int    `json:"page_size"`
	MaxRows     int    `json:"max_rows"`
	Format      string `json:"format"`
	GCSBucket   string `json:"gcs_bucket"`
	Title       string `json:"title,omitempty"`
	TableConfig string `json:"table_config,omitempty"`
	ChartConfig string `json:"chart_config,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}
