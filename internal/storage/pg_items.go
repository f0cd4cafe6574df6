package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultnote/sync-api/internal/domain"
)

// PgItemRepository stores items and their associations in the primary
// Postgres database.
type PgItemRepository struct {
	db *pgxpool.Pool
}

func NewPgItemRepository(db *pgxpool.Pool) *PgItemRepository {
	return &PgItemRepository{db: db}
}

func (r *PgItemRepository) FindOneByID(ctx context.Context, id, userID uuid.UUID) (*domain.Item, error) {
	var item domain.Item
	err := r.db.QueryRow(ctx, `
		SELECT uuid, user_uuid, updated_with_session, content, content_type, enc_item_key, auth_hash,
		       items_key_id, duplicate_of, deleted, created_at, updated_at, created_at_timestamp, updated_at_timestamp
		FROM items
		WHERE uuid = $1 AND user_uuid = $2
	`, id, userID).Scan(
		&item.ID, &item.UserID, &item.UpdatedWithSession,
		&item.Content, &item.ContentType, &item.EncItemKey, &item.AuthHash,
		&item.ItemsKeyID, &item.DuplicateOf, &item.Deleted,
		&item.Dates.CreatedAt, &item.Dates.UpdatedAt,
		&item.Timestamps.CreatedAt, &item.Timestamps.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying item %s: %w", id, err)
	}
	item.Dates.CreatedAt = item.Dates.CreatedAt.UTC()
	item.Dates.UpdatedAt = item.Dates.UpdatedAt.UTC()

	if err := r.loadAssociations(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *PgItemRepository) loadAssociations(ctx context.Context, item *domain.Item) error {
	var vault domain.SharedVaultAssociation
	err := r.db.QueryRow(ctx, `
		SELECT uuid, item_uuid, shared_vault_uuid, last_edited_by, created_at_timestamp, updated_at_timestamp
		FROM item_shared_vault_associations
		WHERE item_uuid = $1
	`, item.ID).Scan(&vault.ID, &vault.ItemID, &vault.SharedVaultID, &vault.LastEditedBy,
		&vault.Timestamps.CreatedAt, &vault.Timestamps.UpdatedAt)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("querying shared vault association for item %s: %w", item.ID, err)
	}
	if err == nil {
		item.SharedVaultAssociation = &vault
	}

	var keySystem domain.KeySystemAssociation
	err = r.db.QueryRow(ctx, `
		SELECT uuid, item_uuid, key_system_identifier, created_at_timestamp, updated_at_timestamp
		FROM item_key_system_associations
		WHERE item_uuid = $1
	`, item.ID).Scan(&keySystem.ID, &keySystem.ItemID, &keySystem.KeySystemIdentifier,
		&keySystem.Timestamps.CreatedAt, &keySystem.Timestamps.UpdatedAt)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("querying key system association for item %s: %w", item.ID, err)
	}
	if err == nil {
		item.KeySystemAssociation = &keySystem
	}
	return nil
}

// Save upserts the item row and reconciles both association tables inside one
// transaction.
func (r *PgItemRepository) Save(ctx context.Context, item *domain.Item) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning item save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO items (uuid, user_uuid, updated_with_session, content, content_type, enc_item_key, auth_hash,
		                   items_key_id, duplicate_of, deleted, created_at, updated_at, created_at_timestamp, updated_at_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (uuid) DO UPDATE SET
			updated_with_session = EXCLUDED.updated_with_session,
			content              = EXCLUDED.content,
			content_type         = EXCLUDED.content_type,
			enc_item_key         = EXCLUDED.enc_item_key,
			auth_hash            = EXCLUDED.auth_hash,
			items_key_id         = EXCLUDED.items_key_id,
			duplicate_of         = EXCLUDED.duplicate_of,
			deleted              = EXCLUDED.deleted,
			created_at           = EXCLUDED.created_at,
			updated_at           = EXCLUDED.updated_at,
			created_at_timestamp = EXCLUDED.created_at_timestamp,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp
	`, item.ID, item.UserID, item.UpdatedWithSession,
		item.Content, item.ContentType, item.EncItemKey, item.AuthHash,
		item.ItemsKeyID, item.DuplicateOf, item.Deleted,
		item.Dates.CreatedAt, item.Dates.UpdatedAt,
		item.Timestamps.CreatedAt, item.Timestamps.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting item %s: %w", item.ID, err)
	}

	if err := saveVaultAssociation(ctx, tx, item); err != nil {
		return err
	}
	if err := saveKeySystemAssociation(ctx, tx, item); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing item save: %w", err)
	}
	return nil
}

func saveVaultAssociation(ctx context.Context, tx pgx.Tx, item *domain.Item) error {
	if item.SharedVaultAssociation == nil {
		if _, err := tx.Exec(ctx,
			`DELETE FROM item_shared_vault_associations WHERE item_uuid = $1`,
			item.ID); err != nil {
			return fmt.Errorf("clearing shared vault association for item %s: %w", item.ID, err)
		}
		return nil
	}
	a := item.SharedVaultAssociation
	_, err := tx.Exec(ctx, `
		INSERT INTO item_shared_vault_associations (uuid, item_uuid, shared_vault_uuid, last_edited_by, created_at_timestamp, updated_at_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_uuid) DO UPDATE SET
			uuid                 = EXCLUDED.uuid,
			shared_vault_uuid    = EXCLUDED.shared_vault_uuid,
			last_edited_by       = EXCLUDED.last_edited_by,
			created_at_timestamp = EXCLUDED.created_at_timestamp,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp
	`, a.ID, a.ItemID, a.SharedVaultID, a.LastEditedBy, a.Timestamps.CreatedAt, a.Timestamps.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving shared vault association for item %s: %w", item.ID, err)
	}
	return nil
}

func saveKeySystemAssociation(ctx context.Context, tx pgx.Tx, item *domain.Item) error {
	if item.KeySystemAssociation == nil {
		if _, err := tx.Exec(ctx,
			`DELETE FROM item_key_system_associations WHERE item_uuid = $1`,
			item.ID); err != nil {
			return fmt.Errorf("clearing key system association for item %s: %w", item.ID, err)
		}
		return nil
	}
	a := item.KeySystemAssociation
	_, err := tx.Exec(ctx, `
		INSERT INTO item_key_system_associations (uuid, item_uuid, key_system_identifier, created_at_timestamp, updated_at_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_uuid) DO UPDATE SET
			uuid                  = EXCLUDED.uuid,
			key_system_identifier = EXCLUDED.key_system_identifier,
			created_at_timestamp  = EXCLUDED.created_at_timestamp,
			updated_at_timestamp  = EXCLUDED.updated_at_timestamp
	`, a.ID, a.ItemID, a.KeySystemIdentifier, a.Timestamps.CreatedAt, a.Timestamps.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving key system association for item %s: %w", item.ID, err)
	}
	return nil
}
