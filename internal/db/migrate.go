package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Schema for the primary database. Every statement is idempotent so any
// process may apply it at boot without coordination.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	uuid UUID PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	roles TEXT[] NOT NULL DEFAULT '{}',
	created_at_timestamp BIGINT NOT NULL,
	updated_at_timestamp BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS users_created_at_idx ON users (created_at_timestamp);

CREATE TABLE IF NOT EXISTS items (
	uuid UUID PRIMARY KEY,
	user_uuid UUID NOT NULL,
	updated_with_session UUID,
	content TEXT,
	content_type TEXT NOT NULL,
	enc_item_key TEXT,
	auth_hash TEXT,
	items_key_id TEXT,
	duplicate_of UUID,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	created_at_timestamp BIGINT NOT NULL,
	updated_at_timestamp BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS items_user_updated_idx ON items (user_uuid, updated_at_timestamp);

CREATE TABLE IF NOT EXISTS item_shared_vault_associations (
	uuid UUID PRIMARY KEY,
	item_uuid UUID NOT NULL UNIQUE,
	shared_vault_uuid UUID NOT NULL,
	last_edited_by UUID NOT NULL,
	created_at_timestamp BIGINT NOT NULL,
	updated_at_timestamp BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_key_system_associations (
	uuid UUID PRIMARY KEY,
	item_uuid UUID NOT NULL UNIQUE,
	key_system_identifier TEXT NOT NULL,
	created_at_timestamp BIGINT NOT NULL,
	updated_at_timestamp BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
	uuid UUID NOT NULL,
	user_uuid UUID NOT NULL,
	item_uuid UUID NOT NULL,
	content TEXT,
	content_type TEXT,
	items_key_id TEXT,
	enc_item_key TEXT,
	auth_hash TEXT,
	created_at_timestamp BIGINT NOT NULL,
	updated_at_timestamp BIGINT NOT NULL,
	PRIMARY KEY (uuid, user_uuid)
);
CREATE INDEX IF NOT EXISTS revisions_user_created_idx ON revisions (user_uuid, created_at_timestamp);
CREATE INDEX IF NOT EXISTS revisions_item_idx ON revisions (item_uuid, user_uuid);

CREATE TABLE IF NOT EXISTS transition_statuses (
	user_uuid UUID NOT NULL,
	transition_type TEXT NOT NULL,
	status TEXT,
	paging_progress INT NOT NULL DEFAULT 1,
	integrity_progress INT NOT NULL DEFAULT 1,
	created_at_timestamp BIGINT NOT NULL,
	updated_at_timestamp BIGINT NOT NULL,
	PRIMARY KEY (user_uuid, transition_type)
);
`

// Migrate applies the primary schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	log.Info().Msg("primary schema up to date")
	return nil
}
