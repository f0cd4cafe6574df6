package transition

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/storage"
)

// IntegrityVerifier proves the primary store holds everything the secondary
// still has, modulo primary copies that moved ahead. It pages with its own
// durable cursor so an interrupted pass resumes where it stopped.
type IntegrityVerifier struct {
	primary   storage.RevisionRepository
	secondary storage.RevisionRepository
	statuses  storage.TransitionStatusRepository
	pageSize  int
}

func NewIntegrityVerifier(primary, secondary storage.RevisionRepository, statuses storage.TransitionStatusRepository, pageSize int) *IntegrityVerifier {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &IntegrityVerifier{
		primary:   primary,
		secondary: secondary,
		statuses:  statuses,
		pageSize:  pageSize,
	}
}

// Check returns nil when every secondary revision is accounted for in the
// primary store, and a diagnostic error on the first discrepancy.
func (v *IntegrityVerifier) Check(ctx context.Context, userID uuid.UUID) error {
	primaryCount, err := v.primary.CountByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("counting revisions in primary store for user %s: %w", userID, err)
	}
	secondaryCount, err := v.secondary.CountByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("counting revisions in secondary store for user %s: %w", userID, err)
	}
	// The primary may hold more (revisions created through the API since the
	// copy started) but never less.
	if primaryCount < secondaryCount {
		return fmt.Errorf("revision count mismatch for user %s: %d in primary database, %d in secondary database", userID, primaryCount, secondaryCount)
	}

	totalPages := pageCount(primaryCount, v.pageSize)
	initialPage, err := v.statuses.GetIntegrityProgress(ctx, userID, domain.TransitionTypeRevisions)
	if err != nil {
		return fmt.Errorf("reading integrity progress for user %s: %w", userID, err)
	}

	for page := initialPage; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("integrity check interrupted for user %s: %w", userID, err)
		}
		if err := v.statuses.SetIntegrityProgress(ctx, userID, domain.TransitionTypeRevisions, page); err != nil {
			return fmt.Errorf("persisting integrity progress for user %s: %w", userID, err)
		}

		revisions, err := v.secondary.FindByUserID(ctx, storage.RevisionQuery{
			UserID: userID,
			Offset: (page - 1) * v.pageSize,
			Limit:  v.pageSize,
		})
		if err != nil {
			return fmt.Errorf("fetching revisions page %d for user %s: %w", page, userID, err)
		}

		for _, revision := range revisions {
			if err := v.checkRevision(ctx, revision); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *IntegrityVerifier) checkRevision(ctx context.Context, revision domain.Revision) error {
	existing, err := v.primary.FindOneByID(ctx, revision.ID, revision.UserID)
	if err != nil {
		return fmt.Errorf("looking up revision %s in primary database: %w", revision.ID, err)
	}
	if existing == nil {
		return fmt.Errorf("revision %s not found in primary database", revision.ID)
	}
	if existing.UpdatedAt > revision.UpdatedAt {
		// The user kept syncing while the copy ran; newer primary wins.
		return nil
	}
	if !existing.Identical(revision) {
		primaryJSON, _ := json.Marshal(existing)
		secondaryJSON, _ := json.Marshal(revision)
		return fmt.Errorf("revision %s differs between databases: primary %s, secondary %s", revision.ID, primaryJSON, secondaryJSON)
	}
	return nil
}
