// Command transition schedules data transitions for accounts created inside a
// date window. It scans the window, requests a transition for every (user,
// type) pair that is not verified yet, prints a report, and exits; the actual
// migrations run on the workers consuming the bus.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/db"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/service/transition"
	"github.com/vaultnote/sync-api/internal/storage"
	"github.com/vaultnote/sync-api/internal/timex"
)

const dateOnly = "2006-01-02"

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: transition <startDate> <endDate> [forceRun]")
	fmt.Fprintln(os.Stderr, "  dates are RFC3339 or 2006-01-02; forceRun retries in-progress transitions")
	os.Exit(1)
}

// parseDate accepts either a full RFC3339 instant or a bare date, which reads
// as midnight UTC.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func main() {
	// Configure structured logging. Every line of one run carries the same
	// correlation timestamp so interleaved runs can be told apart.
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().
		Str("service", "sync-transition").
		Int64("correlation", timex.NowMicros()).
		Logger()

	if env("ENV", "dev") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	args := os.Args[1:]
	if len(args) < 2 || len(args) > 3 {
		usage()
	}

	startDate, err := parseDate(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}
	endDate, err := parseDate(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
	}
	if endDate.Before(startDate) {
		fmt.Fprintln(os.Stderr, "endDate precedes startDate")
		usage()
	}

	forceRun := false
	if len(args) == 3 {
		forceRun, err = strconv.ParseBool(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid forceRun %q, want true or false\n", args[2])
			usage()
		}
	}

	ctx := context.Background()

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

	rdb := redis.NewClient(&redis.Options{Addr: env("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	scheduler := transition.NewScheduler(transition.SchedulerConfig{
		Users:     storage.NewPgUserRepository(pool),
		Statuses:  storage.NewPgTransitionStatusRepository(pool),
		Publisher: events.NewRedisPublisher(rdb, env("EVENT_STREAM", "")),
	})

	report, err := scheduler.Execute(ctx, startDate, endDate, forceRun)
	if err != nil {
		log.Fatal().Err(err).Msg("transition scheduling failed")
	}

	log.Info().
		Int("users", report.Users).
		Int("requested", report.Requested).
		Int("skipped", report.Skipped).
		Msg("done")
}
