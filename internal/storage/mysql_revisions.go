package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vaultnote/sync-api/internal/domain"
)

const legacyRevisionColumns = `uuid, user_uuid, item_uuid, content, content_type, items_key_id, enc_item_key, auth_hash, created_at_timestamp, updated_at_timestamp`

// MySQLRevisionRepository reads and drains the legacy MySQL revision store.
// The legacy schema keeps uuids as CHAR(36), so rows pass through a scan
// struct before becoming domain revisions.
type MySQLRevisionRepository struct {
	db *sqlx.DB
}

func NewMySQLRevisionRepository(db *sqlx.DB) *MySQLRevisionRepository {
	return &MySQLRevisionRepository{db: db}
}

type legacyRevisionRow struct {
	UUID        string  `db:"uuid"`
	UserUUID    string  `db:"user_uuid"`
	ItemUUID    string  `db:"item_uuid"`
	Content     *string `db:"content"`
	ContentType *string `db:"content_type"`
	ItemsKeyID  *string `db:"items_key_id"`
	EncItemKey  *string `db:"enc_item_key"`
	AuthHash    *string `db:"auth_hash"`
	CreatedAt   int64   `db:"created_at_timestamp"`
	UpdatedAt   int64   `db:"updated_at_timestamp"`
}

func (row legacyRevisionRow) toDomain() (domain.Revision, error) {
	id, err := uuid.Parse(row.UUID)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("legacy revision has invalid uuid %q: %w", row.UUID, err)
	}
	userID, err := uuid.Parse(row.UserUUID)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("legacy revision %s has invalid user uuid %q: %w", row.UUID, row.UserUUID, err)
	}
	itemID, err := uuid.Parse(row.ItemUUID)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("legacy revision %s has invalid item uuid %q: %w", row.UUID, row.ItemUUID, err)
	}
	return domain.Revision{
		ID:          id,
		UserID:      userID,
		ItemID:      itemID,
		Content:     row.Content,
		ContentType: row.ContentType,
		ItemsKeyID:  row.ItemsKeyID,
		EncItemKey:  row.EncItemKey,
		AuthHash:    row.AuthHash,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (r *MySQLRevisionRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM revisions WHERE user_uuid = ?`,
		userID.String())
	if err != nil {
		return 0, fmt.Errorf("counting legacy revisions for user %s: %w", userID, err)
	}
	return count, nil
}

func (r *MySQLRevisionRepository) FindByUserID(ctx context.Context, q RevisionQuery) ([]domain.Revision, error) {
	var rows []legacyRevisionRow
	// Same (created_at_timestamp, uuid) order as the primary store so pages
	// stay stable while the cursor advances.
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+legacyRevisionColumns+`
		FROM revisions
		WHERE user_uuid = ?
		ORDER BY created_at_timestamp ASC, uuid ASC
		LIMIT ? OFFSET ?
	`, q.UserID.String(), q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying legacy revisions for user %s: %w", q.UserID, err)
	}
	return legacyRowsToDomain(rows)
}

func (r *MySQLRevisionRepository) FindOneByID(ctx context.Context, id, userID uuid.UUID) (*domain.Revision, error) {
	var row legacyRevisionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+legacyRevisionColumns+` FROM revisions WHERE uuid = ? AND user_uuid = ?`,
		id.String(), userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying legacy revision %s: %w", id, err)
	}
	rev, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *MySQLRevisionRepository) FindByItemID(ctx context.Context, itemID, userID uuid.UUID) ([]domain.Revision, error) {
	var rows []legacyRevisionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+legacyRevisionColumns+`
		FROM revisions
		WHERE item_uuid = ? AND user_uuid = ?
		ORDER BY created_at_timestamp ASC, uuid ASC
	`, itemID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("querying legacy revisions for item %s: %w", itemID, err)
	}
	return legacyRowsToDomain(rows)
}

func (r *MySQLRevisionRepository) Insert(ctx context.Context, revision domain.Revision) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT IGNORE INTO revisions (`+legacyRevisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, revision.ID.String(), revision.UserID.String(), revision.ItemID.String(),
		revision.Content, revision.ContentType, revision.ItemsKeyID, revision.EncItemKey, revision.AuthHash,
		revision.CreatedAt, revision.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting legacy revision %s: %w", revision.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected for legacy revision %s: %w", revision.ID, err)
	}
	return affected > 0, nil
}

func (r *MySQLRevisionRepository) RemoveOneByID(ctx context.Context, id, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM revisions WHERE uuid = ? AND user_uuid = ?`,
		id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("removing legacy revision %s: %w", id, err)
	}
	return nil
}

func (r *MySQLRevisionRepository) RemoveByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM revisions WHERE user_uuid = ?`,
		userID.String())
	if err != nil {
		return fmt.Errorf("removing legacy revisions for user %s: %w", userID, err)
	}
	return nil
}

func legacyRowsToDomain(rows []legacyRevisionRow) ([]domain.Revision, error) {
	revisions := make([]domain.Revision, 0, len(rows))
	for _, row := range rows {
		rev, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, nil
}
