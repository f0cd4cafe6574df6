package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/timex"
)

// PgTransitionStatusRepository keeps transition rows in the primary Postgres
// database. All writers upsert, so the row appears on whatever touches a
// (user, type) pair first.
type PgTransitionStatusRepository struct {
	db *pgxpool.Pool
}

func NewPgTransitionStatusRepository(db *pgxpool.Pool) *PgTransitionStatusRepository {
	return &PgTransitionStatusRepository{db: db}
}

func (r *PgTransitionStatusRepository) GetStatus(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) (*domain.Transition, error) {
	var tr domain.Transition
	var status *string
	err := r.db.QueryRow(ctx, `
		SELECT user_uuid, transition_type, status, paging_progress, integrity_progress, created_at_timestamp, updated_at_timestamp
		FROM transition_statuses
		WHERE user_uuid = $1 AND transition_type = $2
	`, userID, transitionType).Scan(
		&tr.UserID, &tr.Type, &status, &tr.PagingProgress, &tr.IntegrityProgress, &tr.CreatedAt, &tr.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s transition status for user %s: %w", transitionType, userID, err)
	}
	if status != nil {
		tr.Status = domain.TransitionStatus(*status)
	}
	return &tr, nil
}

func (r *PgTransitionStatusRepository) SetStatus(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, status domain.TransitionStatus, timestamp int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transition_statuses (user_uuid, transition_type, status, created_at_timestamp, updated_at_timestamp)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_uuid, transition_type) DO UPDATE SET
			status               = EXCLUDED.status,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp
	`, userID, transitionType, string(status), timestamp)
	if err != nil {
		return fmt.Errorf("setting %s transition status for user %s: %w", transitionType, userID, err)
	}
	return nil
}

func (r *PgTransitionStatusRepository) GetPagingProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) (int, error) {
	return r.getProgress(ctx, userID, transitionType, "paging_progress")
}

func (r *PgTransitionStatusRepository) SetPagingProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, page int) error {
	return r.setProgress(ctx, userID, transitionType, "paging_progress", page)
}

func (r *PgTransitionStatusRepository) GetIntegrityProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) (int, error) {
	return r.getProgress(ctx, userID, transitionType, "integrity_progress")
}

func (r *PgTransitionStatusRepository) SetIntegrityProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, page int) error {
	return r.setProgress(ctx, userID, transitionType, "integrity_progress", page)
}

func (r *PgTransitionStatusRepository) Remove(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM transition_statuses WHERE user_uuid = $1 AND transition_type = $2`,
		userID, transitionType)
	if err != nil {
		return fmt.Errorf("removing %s transition status for user %s: %w", transitionType, userID, err)
	}
	return nil
}

func (r *PgTransitionStatusRepository) getProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, column string) (int, error) {
	var page int
	err := r.db.QueryRow(ctx,
		`SELECT `+column+` FROM transition_statuses WHERE user_uuid = $1 AND transition_type = $2`,
		userID, transitionType).Scan(&page)
	if err == pgx.ErrNoRows {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying %s for user %s: %w", column, userID, err)
	}
	return page, nil
}

func (r *PgTransitionStatusRepository) setProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, column string, page int) error {
	now := timex.NowMicros()
	_, err := r.db.Exec(ctx, `
		INSERT INTO transition_statuses (user_uuid, transition_type, `+column+`, created_at_timestamp, updated_at_timestamp)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_uuid, transition_type) DO UPDATE SET
			`+column+`           = EXCLUDED.`+column+`,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp
	`, userID, transitionType, page, now)
	if err != nil {
		return fmt.Errorf("setting %s for user %s: %w", column, userID, err)
	}
	return nil
}
