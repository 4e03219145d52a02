package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearcard/sqljob/internal/config"
	storepkg "github.com/clearcard/sqljob/internal/store"
	storepg "github.com/clearcard/sqljob/internal/store/postgres"
)

// NewStore returns a Postgres-backed store.Store built from cfg.DSN().
// Opens and pings the connection synchronously, so an unreachable
// metadata store fails startup and health checks can probe it
// immediately; a second bootstrap connectivity check then runs in the
// background and only logs its outcome.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	dsn := cfg.DSN()

	db, err := storepg.Open(dsn)
	if err != nil {
		return nil, err
	}

	go func() {
		bootstrapCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout)*time.Second)
		defer cancel()

		if err := storepg.Bootstrap(bootstrapCtx, dsn); err != nil {
			log.Warn().Err(err).Msg("metadata store bootstrap check failed")
		} else {
			log.Debug().Msg("metadata store bootstrap check completed")
		}
	}()

	return storepg.NewWithDB(db), nil
}
