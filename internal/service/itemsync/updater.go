// Package itemsync applies client-submitted item hashes to stored items. The
// hash is the full desired state for one item; validation happens up front and
// the first failure wins, so nothing is persisted for a rejected hash.
package itemsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/storage"
	"github.com/vaultnote/sync-api/internal/timex"
)

// ValidationError marks a rejected hash. Callers map it to a client error
// instead of a server failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func failf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UpdateInput is one update request. SessionID and PerformingUserID arrive as
// strings straight from the authentication layer and are validated here.
type UpdateInput struct {
	Existing         domain.Item
	Hash             domain.ItemHash
	SessionID        string
	PerformingUserID string
}

// Updater applies hashes to items and requests the follow-up revision work.
type Updater struct {
	items     storage.ItemRepository
	publisher events.Publisher
}

func NewUpdater(items storage.ItemRepository, publisher events.Publisher) *Updater {
	return &Updater{items: items, publisher: publisher}
}

// identifiers carries the parsed form of every identifier-like hash field.
type identifiers struct {
	session     uuid.UUID
	user        uuid.UUID
	duplicateOf *uuid.UUID
	sharedVault *uuid.UUID
	keySystem   *string
}

// Execute validates the hash, applies it to a copy of the existing item,
// persists the result and publishes the revision events. The stored item is
// untouched when any validation step fails.
func (u *Updater) Execute(ctx context.Context, in UpdateInput) (domain.Item, error) {
	var zero domain.Item

	ids, verr := validate(in)
	if verr != nil {
		return zero, verr
	}

	item := in.Existing
	item.UpdatedWithSession = &ids.session
	item.Content = in.Hash.Content
	item.ContentType = in.Hash.ContentType
	item.EncItemKey = in.Hash.EncItemKey
	item.AuthHash = in.Hash.AuthHash
	item.ItemsKeyID = in.Hash.ItemsKeyID
	item.DuplicateOf = ids.duplicateOf

	if in.Hash.Deleted != nil && *in.Hash.Deleted {
		// A deleted item keeps its row but sheds every payload field,
		// including the duplication link.
		item.Deleted = true
		item.Content = nil
		item.EncItemKey = nil
		item.AuthHash = nil
		item.ItemsKeyID = nil
		item.DuplicateOf = nil
	}

	timestamps, dates, verr := resolveTimes(in.Hash)
	if verr != nil {
		return zero, verr
	}
	item.Timestamps = timestamps
	item.Dates = dates

	// Timestamps are settled first so a freshly minted association carries
	// the pair the item is being saved with.
	if ids.sharedVault != nil {
		current := item.SharedVaultAssociation
		if current == nil || current.SharedVaultID != *ids.sharedVault {
			item.SharedVaultAssociation = &domain.SharedVaultAssociation{
				ID:            uuid.New(),
				ItemID:        item.ID,
				SharedVaultID: *ids.sharedVault,
				LastEditedBy:  ids.user,
				Timestamps:    item.Timestamps,
			}
		}
	}
	if ids.keySystem != nil {
		current := item.KeySystemAssociation
		if current == nil || current.KeySystemIdentifier != *ids.keySystem {
			item.KeySystemAssociation = &domain.KeySystemAssociation{
				ID:                  uuid.New(),
				ItemID:              item.ID,
				KeySystemIdentifier: *ids.keySystem,
				Timestamps:          item.Timestamps,
			}
		}
	}

	if err := u.items.Save(ctx, &item); err != nil {
		return zero, fmt.Errorf("saving item %s: %w", item.ID, err)
	}

	if err := u.publisher.Publish(ctx, events.NewItemRevisionCreationRequested(item.ID, item.UserID)); err != nil {
		return zero, fmt.Errorf("requesting revision for item %s: %w", item.ID, err)
	}
	// The duplication event follows the hash, not the stored item: a deleted
	// duplicate still announces where it came from.
	if ids.duplicateOf != nil {
		if err := u.publisher.Publish(ctx, events.NewDuplicateItemSynced(item.ID, *ids.duplicateOf, item.UserID)); err != nil {
			return zero, fmt.Errorf("announcing duplicate of %s: %w", ids.duplicateOf, err)
		}
	}

	return item, nil
}

// validate runs the checks in their fixed order and stops at the first
// failure.
func validate(in UpdateInput) (identifiers, *ValidationError) {
	var ids identifiers

	session, err := uuid.Parse(in.SessionID)
	if err != nil {
		return ids, failf("session id %q is not a valid identifier", in.SessionID)
	}
	ids.session = session
	user, err := uuid.Parse(in.PerformingUserID)
	if err != nil {
		return ids, failf("performing user id %q is not a valid identifier", in.PerformingUserID)
	}
	ids.user = user

	if !domain.KnownContentType(in.Hash.ContentType) {
		return ids, failf("unknown content type %q", in.Hash.ContentType)
	}

	if in.Hash.DuplicateOf != nil {
		duplicateOf, err := uuid.Parse(*in.Hash.DuplicateOf)
		if err != nil {
			return ids, failf("duplicate of id %q is not a valid identifier", *in.Hash.DuplicateOf)
		}
		ids.duplicateOf = &duplicateOf
	}

	if !in.Hash.HasCreationTime() {
		return ids, failf("item %s carries no created at date or timestamp", in.Hash.UUID)
	}

	if in.Hash.SharedVaultUUID != nil {
		sharedVault, err := uuid.Parse(*in.Hash.SharedVaultUUID)
		if err != nil {
			return ids, failf("shared vault id %q is not a valid identifier", *in.Hash.SharedVaultUUID)
		}
		ids.sharedVault = &sharedVault
	}

	if in.Hash.KeySystemIdentifier != nil {
		keySystem := strings.TrimSpace(*in.Hash.KeySystemIdentifier)
		if keySystem == "" {
			return ids, failf("key system identifier must not be empty")
		}
		ids.keySystem = &keySystem
	}

	return ids, nil
}

// resolveTimes turns the hash's time fields into the microsecond pair and its
// wall-clock shadow. Each field independently prefers the microsecond form
// and falls back to the string form; a missing updated time means now, while
// a missing created time was already rejected during validation.
func resolveTimes(hash domain.ItemHash) (domain.Timestamps, domain.Dates, *ValidationError) {
	var (
		zeroTS domain.Timestamps
		zeroD  domain.Dates
	)

	createdAt, ok, err := microsFrom(hash.CreatedAtTimestamp, hash.CreatedAt)
	if err != nil {
		return zeroTS, zeroD, failf("created at date %q is not parseable", *hash.CreatedAt)
	}
	if !ok {
		return zeroTS, zeroD, failf("item %s carries no created at date or timestamp", hash.UUID)
	}

	updatedAt, ok, err := microsFrom(hash.UpdatedAtTimestamp, hash.UpdatedAt)
	if err != nil {
		return zeroTS, zeroD, failf("updated at date %q is not parseable", *hash.UpdatedAt)
	}
	if !ok {
		updatedAt = timex.NowMicros()
	}

	timestamps, err := domain.NewTimestamps(createdAt, updatedAt)
	if err != nil {
		return zeroTS, zeroD, failf("%v", err)
	}
	dates, err := domain.NewDates(timex.FromMicros(createdAt), timex.FromMicros(updatedAt))
	if err != nil {
		return zeroTS, zeroD, failf("%v", err)
	}
	return timestamps, dates, nil
}

// microsFrom resolves one created/updated field pair. The bool reports
// whether either form was present.
func microsFrom(timestamp *int64, date *string) (int64, bool, error) {
	if timestamp != nil {
		return *timestamp, true, nil
	}
	if date != nil && *date != "" {
		micros, err := timex.ParseDateToMicros(*date)
		if err != nil {
			return 0, false, err
		}
		return micros, true, nil
	}
	return 0, false, nil
}
