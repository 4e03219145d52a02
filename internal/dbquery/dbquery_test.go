package dbquery

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE rows_t (a INTEGER, b TEXT)`)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := db.Exec(`INSERT INTO rows_t(a, b) VALUES (?, ?)`, i, "row")
		require.NoError(t, err)
	}
	return db
}

func TestExecute_ColumnsAndBatching(t *testing.T) {
	db := openTestDB(t)
	cur, cancel, err := Execute(context.Background(), db, "SELECT a, b FROM rows_t ORDER BY a", 5*time.Second)
	require.NoError(t, err)
	defer cancel()
	defer cur.Close()

	require.Equal(t, []string{"a", "b"}, cur.Columns())

	batch, err := cur.FetchBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	batch, err = cur.FetchBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	batch, err = cur.FetchBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	batch, err = cur.FetchBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 0)
}
