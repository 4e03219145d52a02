package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the broker and worker processes.
// Environment variables are the exact names the upstream RPC/credential
// collaborators already use (no common prefix), so envconfig is invoked
// with an empty prefix and each field pins its own name via the
// envconfig tag.
type Config struct {
	// Broker HTTP listen port.
	Port int `envconfig:"MH_PORT" default:"50051"`

	// Status cache + job queue.
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// Relational metadata store / query target connection.
	DBHost         string `envconfig:"MSSQL_HOST" default:"127.0.0.1"`
	DBName         string `envconfig:"MSSQL_DB" default:""`
	DBUser         string `envconfig:"MSSQL_USER" default:""`
	DBPassword     string `envconfig:"MSSQL_PWD" default:""`
	DBDriver       string `envconfig:"MSSQL_DRIVER" default:"pgx"`
	QueryTimeoutS  int    `envconfig:"MSSQL_QUERY_TIMEOUT" default:"300"`
	ConnectTimeout int    `envconfig:"MSSQL_CONNECT_TIMEOUT" default:"10"`

	// Object store.
	GCSBucket string `envconfig:"GCS_BUCKET" default:"clearcard-sql-results"`

	// Chunk rotation threshold, in MiB.
	ChunkMaxMB int `envconfig:"RESULT_CHUNK_MAX_MB" default:"100"`

	// Advisory; loaded into Config but not applied to any logger.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// New parses Config from the process environment and validates it.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Int("port", cfg.Port).
		Str("db_driver", cfg.DBDriver).
		Str("gcs_bucket", cfg.GCSBucket).
		Int("chunk_max_mb", cfg.ChunkMaxMB).
		Int("query_timeout_s", cfg.QueryTimeoutS).
		Msg("configuration loaded")

	return &cfg, nil
}

// Validate rejects a chunk threshold or query timeout of zero or less.
func (c *Config) Validate() error {
	if c.ChunkMaxMB <= 0 {
		return fmt.Errorf("RESULT_CHUNK_MAX_MB must be positive, got %d", c.ChunkMaxMB)
	}
	if c.QueryTimeoutS <= 0 {
		return fmt.Errorf("MSSQL_QUERY_TIMEOUT must be positive, got %d", c.QueryTimeoutS)
	}
	return nil
}

// ChunkMaxBytes is the rotation threshold in bytes.
func (c *Config) ChunkMaxBytes() int64 {
	return int64(c.ChunkMaxMB) * 1024 * 1024
}

// NewForTesting returns a Config tuned for fast, deterministic tests: a
// 10 MiB chunk threshold, matching the nominal testing default noted in
// the design (100 MiB in the nominal production default).
func NewForTesting() *Config {
	return &Config{
		Port:           50051,
		RedisURL:       "redis://localhost:6379/0",
		DBDriver:       "pgx",
		QueryTimeoutS:  300,
		ConnectTimeout: 10,
		GCSBucket:      "test-bucket",
		ChunkMaxMB:     10,
		LogLevel:       "debug",
	}
}

// DSN assembles a database/sql data source name for the configured driver.
// Only the pgx driver is carried by this module; MSSQL_DRIVER is accepted
// for configuration compatibility but not read when dialing, so every
// connection uses pgx whatever its value.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBName)
}
