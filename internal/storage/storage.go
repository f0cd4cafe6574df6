// Package storage defines the persistence contracts the sync core depends on
// and implements them for the primary Postgres database and the legacy MySQL
// database still holding unmigrated revision history.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/domain"
)

// RevisionQuery narrows FindByUserID to one page. Implementations must order
// rows deterministically so the same offset always yields the same page.
type RevisionQuery struct {
	UserID uuid.UUID
	Offset int
	Limit  int
}

// RevisionRepository is implemented by both revision stores. Insert reports
// whether a row was actually written (false when the id already exists), so
// replayed event deliveries stay idempotent.
type RevisionRepository interface {
	CountByUserID(ctx context.Context, userID uuid.UUID) (int, error)
	FindByUserID(ctx context.Context, q RevisionQuery) ([]domain.Revision, error)
	FindOneByID(ctx context.Context, id, userID uuid.UUID) (*domain.Revision, error)
	FindByItemID(ctx context.Context, itemID, userID uuid.UUID) ([]domain.Revision, error)
	Insert(ctx context.Context, revision domain.Revision) (bool, error)
	RemoveOneByID(ctx context.Context, id, userID uuid.UUID) error
	RemoveByUserID(ctx context.Context, userID uuid.UUID) error
}

// UserQuery pages through accounts created inside a window. Bounds are UTC
// microseconds, both inclusive.
type UserQuery struct {
	CreatedAfter  int64
	CreatedBefore int64
	Offset        int
	Limit         int
}

// UserRepository reads the account base. This service never writes users.
type UserRepository interface {
	CountCreatedBetween(ctx context.Context, createdAfter, createdBefore int64) (int, error)
	FindCreatedBetween(ctx context.Context, q UserQuery) ([]domain.User, error)
}

// ItemRepository loads and persists items together with their vault and key
// system associations.
type ItemRepository interface {
	FindOneByID(ctx context.Context, id, userID uuid.UUID) (*domain.Item, error)
	Save(ctx context.Context, item *domain.Item) error
}

// TransitionStatusRepository is the durable ledger keyed by (user, type).
// Progress getters answer 1 when no row exists yet. Remove clears the status
// and both cursors in one statement by deleting the row.
type TransitionStatusRepository interface {
	GetStatus(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) (*domain.Transition, error)
	SetStatus(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, status domain.TransitionStatus, timestamp int64) error
	GetPagingProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) (int, error)
	SetPagingProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, page int) error
	GetIntegrityProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) (int, error)
	SetIntegrityProgress(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType, page int) error
	Remove(ctx context.Context, userID uuid.UUID, transitionType domain.TransitionType) error
}
