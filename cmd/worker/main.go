package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vaultnote/sync-api/internal/db"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/service/revisions"
	"github.com/vaultnote/sync-api/internal/service/transition"
	"github.com/vaultnote/sync-api/internal/storage"
	"github.com/vaultnote/sync-api/internal/worker"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Warn().Str("key", k).Str("value", v).Int("default", def).Msg("ignoring invalid integer setting")
		return def
	}
	return n
}

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "sync-worker").Logger()

	if env("ENV", "dev") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	pgURL := env("DATABASE_URL", "")
	if pgURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	pool, err := db.Open(ctx, pgURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// The legacy database is optional: without it the worker still serves
	// revision and status events, and transition requests fail with a
	// configuration error instead of silently doing nothing.
	var legacyRevisions storage.RevisionRepository
	if dsn := env("LEGACY_DATABASE_DSN", ""); dsn != "" {
		legacy, err := db.OpenLegacy(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to legacy mysql")
		}
		defer legacy.Close()
		legacyRevisions = storage.NewMySQLRevisionRepository(legacy)
	} else {
		log.Warn().Msg("LEGACY_DATABASE_DSN is not set, transition requests will be rejected")
	}

	// Event bus connection
	rdb := redis.NewClient(&redis.Options{Addr: env("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	revisionRepo := storage.NewPgRevisionRepository(pool)
	itemRepo := storage.NewPgItemRepository(pool)
	statusRepo := storage.NewPgTransitionStatusRepository(pool)
	stream := env("EVENT_STREAM", "")
	publisher := events.NewRedisPublisher(rdb, stream)

	migrator := transition.NewMigrator(transition.MigratorConfig{
		Primary:   revisionRepo,
		Secondary: legacyRevisions,
		Statuses:  statusRepo,
		Publisher: publisher,
	})
	dispatcher := worker.NewDispatcher(migrator, statusRepo, revisions.NewService(revisionRepo, itemRepo))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "sync-worker"
	}

	concurrency := envInt("WORKER_CONCURRENCY", 4)
	log.Info().Int("concurrency", concurrency).Msg("starting consumers")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := events.NewConsumer(rdb, stream, env("EVENT_GROUP", ""), fmt.Sprintf("%s-%d", hostname, i))
		g.Go(func() error {
			return consumer.Run(gctx, dispatcher.Handle)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker failed")
	}

	log.Info().Msg("worker stopped")
}
