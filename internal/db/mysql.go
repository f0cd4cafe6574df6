package db

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// OpenLegacy connects to the legacy MySQL database that still holds
// unmigrated revision history. The pool is kept small: only transition
// workers touch this database and the goal is to drain it, not to load it.
func OpenLegacy(ctx context.Context, dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Msg("legacy mysql pool ready")
	return conn, nil
}
