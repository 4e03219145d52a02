// Package dbquery wraps database/sql to run arbitrary job SQL against
// the target relational database and fetch results in page-sized
// batches, as required by the Worker Loop's step 5-7 (spec 4.H).
package dbquery

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open dials the target database the worker executes job SQL against.
// Distinct from the Metadata Store's connection: this one runs untrusted,
// job-supplied SQL and is scoped to a single job's lifetime.
func Open(dsn string, connectTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Cursor drives a single executed query: it exposes the column names and
// paged row fetches the worker needs without leaking *sql.Rows directly.
type Cursor struct {
	rows    *sql.Rows
	columns []string
	done    bool
}

// Execute runs sql with the given query timeout and returns a Cursor
// positioned before the first row.
func Execute(ctx context.Context, db *sql.DB, sqlText string, queryTimeout time.Duration) (*Cursor, context.CancelFunc, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	rows, err := db.QueryContext(qctx, sqlText)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		cancel()
		return nil, nil, err
	}
	return &Cursor{rows: rows, columns: cols}, cancel, nil
}

// Columns returns the result set's column names, in cursor order.
func (c *Cursor) Columns() []string { return c.columns }

// FetchBatch returns up to pageSize rows, each already converted to
// interface{} cell values via database/sql scanning. An empty batch with
// a nil error means the cursor is exhausted.
func (c *Cursor) FetchBatch(pageSize int) (batch [][]interface{}, err error) {
	if c.done {
		return nil, nil
	}
	for len(batch) < pageSize {
		if !c.rows.Next() {
			c.done = true
			break
		}
		vals := make([]interface{}, len(c.columns))
		ptrs := make([]interface{}, len(c.columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		batch = append(batch, vals)
	}
	if err := c.rows.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Close releases the underlying rows.
func (c *Cursor) Close() error { return c.rows.Close() }
