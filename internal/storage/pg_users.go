package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultnote/sync-api/internal/domain"
)

// PgUserRepository reads the account base from the primary Postgres database.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) CountCreatedBetween(ctx context.Context, createdAfter, createdBefore int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at_timestamp BETWEEN $1 AND $2`,
		createdAfter, createdBefore).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting users in creation window: %w", err)
	}
	return count, nil
}

func (r *PgUserRepository) FindCreatedBetween(ctx context.Context, q UserQuery) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT uuid, email, roles, created_at_timestamp, updated_at_timestamp
		FROM users
		WHERE created_at_timestamp BETWEEN $1 AND $2
		ORDER BY created_at_timestamp ASC, uuid ASC
		OFFSET $3 LIMIT $4
	`, q.CreatedAfter, q.CreatedBefore, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("querying users in creation window: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}
