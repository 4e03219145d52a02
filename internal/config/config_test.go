package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func unsetAll(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MH_PORT", "REDIS_URL", "MSSQL_HOST", "MSSQL_DB", "MSSQL_USER", "MSSQL_PWD", "MSSQL_DRIVER", "MSSQL_QUERY_TIMEOUT", "GCS_BUCKET", "RESULT_CHUNK_MAX_MB", "LOG_LEVEL"} {
		_ = os.Unsetenv(k)
	}
}

func TestNew_Defaults(t *testing.T) {
	unsetAll(t)
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, 50051, cfg.Port)
	require.Equal(t, "clearcard-sql-results", cfg.GCSBucket)
	require.Equal(t, 100, cfg.ChunkMaxMB)
	require.Equal(t, int64(100*1024*1024), cfg.ChunkMaxBytes())
}

func TestNew_EnvOverride(t *testing.T) {
	unsetAll(t)
	_ = os.Setenv("RESULT_CHUNK_MAX_MB", "10")
	defer unsetAll(t)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.ChunkMaxMB)
	require.Equal(t, int64(10*1024*1024), cfg.ChunkMaxBytes())
}

func TestValidate_RejectsNonPositiveChunkSize(t *testing.T) {
	cfg := NewForTesting()
	cfg.ChunkMaxMB = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveQueryTimeout(t *testing.T) {
	cfg := NewForTesting()
	cfg.QueryTimeoutS = -1
	require.Error(t, cfg.Validate())
}
