package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultnote/sync-api/internal/domain"
)

const revisionColumns = `uuid, user_uuid, item_uuid, content, content_type, items_key_id, enc_item_key, auth_hash, created_at_timestamp, updated_at_timestamp`

// PgRevisionRepository stores revisions in the primary Postgres database.
type PgRevisionRepository struct {
	db *pgxpool.Pool
}

func NewPgRevisionRepository(db *pgxpool.Pool) *PgRevisionRepository {
	return &PgRevisionRepository{db: db}
}

func (r *PgRevisionRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM revisions WHERE user_uuid = $1`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting revisions for user %s: %w", userID, err)
	}
	return count, nil
}

func (r *PgRevisionRepository) FindByUserID(ctx context.Context, q RevisionQuery) ([]domain.Revision, error) {
	// Ordered by (created_at_timestamp, uuid) so offset paging is stable
	// across calls.
	rows, err := r.db.Query(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE user_uuid = $1
		ORDER BY created_at_timestamp ASC, uuid ASC
		OFFSET $2 LIMIT $3
	`, q.UserID, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("querying revisions for user %s: %w", q.UserID, err)
	}
	return scanRevisions(rows)
}

func (r *PgRevisionRepository) FindOneByID(ctx context.Context, id, userID uuid.UUID) (*domain.Revision, error) {
	var rev domain.Revision
	err := r.db.QueryRow(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE uuid = $1 AND user_uuid = $2`,
		id, userID).Scan(
		&rev.ID, &rev.UserID, &rev.ItemID,
		&rev.Content, &rev.ContentType, &rev.ItemsKeyID, &rev.EncItemKey, &rev.AuthHash,
		&rev.CreatedAt, &rev.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying revision %s: %w", id, err)
	}
	return &rev, nil
}

func (r *PgRevisionRepository) FindByItemID(ctx context.Context, itemID, userID uuid.UUID) ([]domain.Revision, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE item_uuid = $1 AND user_uuid = $2
		ORDER BY created_at_timestamp ASC, uuid ASC
	`, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying revisions for item %s: %w", itemID, err)
	}
	return scanRevisions(rows)
}

func (r *PgRevisionRepository) Insert(ctx context.Context, revision domain.Revision) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO revisions (`+revisionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (uuid, user_uuid) DO NOTHING
	`, revision.ID, revision.UserID, revision.ItemID,
		revision.Content, revision.ContentType, revision.ItemsKeyID, revision.EncItemKey, revision.AuthHash,
		revision.CreatedAt, revision.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting revision %s: %w", revision.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRevisionRepository) RemoveOneByID(ctx context.Context, id, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM revisions WHERE uuid = $1 AND user_uuid = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("removing revision %s: %w", id, err)
	}
	return nil
}

func (r *PgRevisionRepository) RemoveByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM revisions WHERE user_uuid = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("removing revisions for user %s: %w", userID, err)
	}
	return nil
}

func scanRevisions(rows pgx.Rows) ([]domain.Revision, error) {
	defer rows.Close()
	revisions := make([]domain.Revision, 0)
	for rows.Next() {
		var rev domain.Revision
		if err := rows.Scan(
			&rev.ID, &rev.UserID, &rev.ItemID,
			&rev.Content, &rev.ContentType, &rev.ItemsKeyID, &rev.EncItemKey, &rev.AuthHash,
			&rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning revision row: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating revision rows: %w", err)
	}
	return revisions, nil
}
