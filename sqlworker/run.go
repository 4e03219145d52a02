// Package sqlworker is the composition root for the worker process: it
// dials Redis, the target database, and GCS, then runs the Worker Loop
// until shutdown. Structured the way outboxworker.Run is: a package-level
// Run() that cmd/worker's main.go calls directly.
package sqlworker

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"

	"github.com/clearcard/sqljob/internal/config"
	"github.com/clearcard/sqljob/internal/dbquery"
	"github.com/clearcard/sqljob/internal/logger"
	"github.com/clearcard/sqljob/internal/objectstore"
	"github.com/clearcard/sqljob/internal/queue"
	"github.com/clearcard/sqljob/internal/statuscache"
	"github.com/clearcard/sqljob/internal/store/postgres"
	"github.com/clearcard/sqljob/internal/worker"
)

// Run starts the worker loop and blocks until ctx is canceled or the loop
// exits with a non-cancellation error.
func Run() error {
	log := logger.New("worker")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	db, err := postgres.Open(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("metadata store open")
	}
	jobsStore := postgres.NewWithDB(db).Jobs()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	cache := statuscache.New(rdb)
	q := queue.New(rdb)

	gcsClient, err := storage.NewClient(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("gcs client")
	}
	uploads := objectstore.New(gcsClient, cfg.GCSBucket)

	openDB := func(connectTimeout time.Duration) (*sql.DB, error) {
		return dbquery.Open(cfg.DSN(), connectTimeout)
	}

	w := worker.New(q, jobsStore, cache, uploads, openDB, worker.Config{
		ChunkMaxBytes:  cfg.ChunkMaxBytes(),
		QueryTimeout:   time.Duration(cfg.QueryTimeoutS) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("worker loop exit")
		return err
	}
	return nil
}
