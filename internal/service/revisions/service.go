// Package revisions materializes item history. Revisions are written from
// events, so every id is derived deterministically and inserts are
// duplicate-tolerant; redelivered events converge on the same rows.
package revisions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/storage"
)

// revisionNamespace seeds the SHA1 ids. Changing it would re-key every
// derived revision, so it is fixed for the lifetime of the data set.
var revisionNamespace = uuid.MustParse("3f1d5ea2-7f44-4f3c-9c76-0d8e2f4b6a91")

// snapshotID names the revision capturing an item at one update instant.
func snapshotID(itemID uuid.UUID, updatedAt int64) uuid.UUID {
	data := make([]byte, 0, 40)
	data = append(data, itemID[:]...)
	data = append(data, strconv.FormatInt(updatedAt, 10)...)
	return uuid.NewSHA1(revisionNamespace, data)
}

// copyID names the copy of one source revision under a duplicate item.
func copyID(targetItemID, sourceRevisionID uuid.UUID) uuid.UUID {
	data := make([]byte, 0, 32)
	data = append(data, targetItemID[:]...)
	data = append(data, sourceRevisionID[:]...)
	return uuid.NewSHA1(revisionNamespace, data)
}

// Service turns revision events into stored history.
type Service struct {
	revisions storage.RevisionRepository
	items     storage.ItemRepository
}

func NewService(revisions storage.RevisionRepository, items storage.ItemRepository) *Service {
	return &Service{revisions: revisions, items: items}
}

// CreateFromItem snapshots the current state of an item as one revision. An
// item deleted between the event and now is skipped, not failed; the history
// of a gone item has nothing left to record.
func (s *Service) CreateFromItem(ctx context.Context, itemID, userID uuid.UUID) error {
	item, err := s.items.FindOneByID(ctx, itemID, userID)
	if err != nil {
		return fmt.Errorf("loading item %s: %w", itemID, err)
	}
	if item == nil {
		log.Warn().
			Str("itemId", itemID.String()).
			Str("userId", userID.String()).
			Msg("item no longer exists, skipping revision")
		return nil
	}

	contentType := item.ContentType
	revision := domain.Revision{
		ID:          snapshotID(item.ID, item.Timestamps.UpdatedAt),
		UserID:      item.UserID,
		ItemID:      item.ID,
		Content:     item.Content,
		ContentType: &contentType,
		ItemsKeyID:  item.ItemsKeyID,
		EncItemKey:  item.EncItemKey,
		AuthHash:    item.AuthHash,
		CreatedAt:   item.Timestamps.UpdatedAt,
		UpdatedAt:   item.Timestamps.UpdatedAt,
	}

	inserted, err := s.revisions.Insert(ctx, revision)
	if err != nil {
		return fmt.Errorf("inserting revision for item %s: %w", itemID, err)
	}
	if !inserted {
		log.Debug().
			Str("itemId", itemID.String()).
			Str("revisionId", revision.ID.String()).
			Msg("revision already materialized")
	}
	return nil
}

// CopyHistory clones every revision of the duplicated-from item onto the
// duplicate, so the new item starts with the full history of its source.
func (s *Service) CopyHistory(ctx context.Context, itemID, duplicateOfID, userID uuid.UUID) error {
	source, err := s.revisions.FindByItemID(ctx, duplicateOfID, userID)
	if err != nil {
		return fmt.Errorf("loading revisions of item %s: %w", duplicateOfID, err)
	}

	copied := 0
	for _, revision := range source {
		clone := revision
		clone.ID = copyID(itemID, revision.ID)
		clone.ItemID = itemID
		inserted, err := s.revisions.Insert(ctx, clone)
		if err != nil {
			return fmt.Errorf("copying revision %s onto item %s: %w", revision.ID, itemID, err)
		}
		if inserted {
			copied++
		}
	}

	log.Info().
		Str("itemId", itemID.String()).
		Str("duplicateOfId", duplicateOfID.String()).
		Int("copied", copied).
		Int("total", len(source)).
		Msg("duplicate history copied")
	return nil
}
