// Package brokerservice is the composition root for the broker process:
// it wires config, the metadata store, the status cache, the job queue,
// and the HTTP transport, then blocks serving until shutdown or error.
package brokerservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clearcard/sqljob/internal/api"
	"github.com/clearcard/sqljob/internal/broker"
	"github.com/clearcard/sqljob/internal/config"
	"github.com/clearcard/sqljob/internal/factory"
	"github.com/clearcard/sqljob/internal/health"
	"github.com/clearcard/sqljob/internal/logger"
	"github.com/clearcard/sqljob/internal/queue"
	"github.com/clearcard/sqljob/internal/statuscache"
	"github.com/clearcard/sqljob/internal/store"
)

// Run starts the broker HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("broker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	log.Info().
		Int("port", cfg.Port).
		Str("gcs_bucket", cfg.GCSBucket).
		Msg("broker starting")

	ctx, stop := newServerContext()
	defer stop()

	st, cache, q, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	svc := broker.New(st.Jobs(), cache, q, cfg.GCSBucket, log)
	router := api.NewRouter(svc)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, cache, q)

	if err := waitUntilHealthy(ctx, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down broker")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("server forced to shutdown")
			return err
		}
		log.Info().Msg("broker exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("http server failed")
		return err
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, *statuscache.Cache, *queue.Queue, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("store adapter unavailable")
		return nil, nil, nil, err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	cache := statuscache.New(rdb)
	q := queue.New(rdb)
	return st, cache, q, nil
}

func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, cache *statuscache.Cache, q *queue.Queue) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := 2 * time.Second
	interval := 10 * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	cacheChecker := health.NewPingChecker("status_cache", cache, log, probeTimeout)
	go cacheChecker.Start(ctx, interval)
	checkers = append(checkers, cacheChecker)

	queueChecker := health.NewPingChecker("job_queue", q, log, probeTimeout)
	go queueChecker.Start(ctx, interval)
	checkers = append(checkers, queueChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func calculateStartupHealthTimeout() int { return 60 }

func waitUntilHealthy(ctx context.Context, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout()
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
