package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Content types clients may submit. Everything else is rejected before any
// mutation happens.
var knownContentTypes = map[string]struct{}{
	"Note":                {},
	"Tag":                 {},
	"ItemsKey":            {},
	"UserPrefs":           {},
	"Component":           {},
	"Theme":               {},
	"SmartTag":            {},
	"FileSafeCredentials": {},
	"File":                {},
	"KeySystemRootKey":    {},
	"KeySystemItemsKey":   {},
	"VaultListing":        {},
	"Contact":             {},
}

// KnownContentType reports whether clients may submit items of this type.
func KnownContentType(s string) bool {
	_, ok := knownContentTypes[s]
	return ok
}

// Timestamps is the microsecond-precision created/updated pair carried by
// items and associations. Microseconds are the authoritative representation;
// Dates is the human-time shadow kept alongside for older clients.
type Timestamps struct {
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewTimestamps rejects pairs where the update precedes creation.
func NewTimestamps(createdAt, updatedAt int64) (Timestamps, error) {
	if updatedAt < createdAt {
		return Timestamps{}, fmt.Errorf("updated at timestamp %d precedes created at timestamp %d", updatedAt, createdAt)
	}
	return Timestamps{CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

// Dates mirrors Timestamps at wall-clock precision.
type Dates struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDates rejects pairs where the update precedes creation.
func NewDates(createdAt, updatedAt time.Time) (Dates, error) {
	if updatedAt.Before(createdAt) {
		return Dates{}, fmt.Errorf("updated at date %s precedes created at date %s", updatedAt.Format(time.RFC3339Nano), createdAt.Format(time.RFC3339Nano))
	}
	return Dates{CreatedAt: createdAt.UTC(), UpdatedAt: updatedAt.UTC()}, nil
}

// SharedVaultAssociation links an item into a shared vault. A fresh
// association (new row identity) is minted only when the item moves to a
// different vault; repeated syncs into the same vault keep the original row.
type SharedVaultAssociation struct {
	ID            uuid.UUID  `json:"uuid"`
	ItemID        uuid.UUID  `json:"item_uuid"`
	SharedVaultID uuid.UUID  `json:"shared_vault_uuid"`
	LastEditedBy  uuid.UUID  `json:"last_edited_by"`
	Timestamps    Timestamps `json:"timestamps"`
}

// KeySystemAssociation pins an item to the key system that encrypts it. Same
// identity rule as SharedVaultAssociation.
type KeySystemAssociation struct {
	ID                  uuid.UUID  `json:"uuid"`
	ItemID              uuid.UUID  `json:"item_uuid"`
	KeySystemIdentifier string     `json:"key_system_identifier"`
	Timestamps          Timestamps `json:"timestamps"`
}

// Item is one encrypted client payload plus its server-side bookkeeping. The
// server never interprets Content or the key fields; they round-trip as-is.
type Item struct {
	ID                     uuid.UUID               `json:"uuid"`
	UserID                 uuid.UUID               `json:"user_uuid"`
	UpdatedWithSession     *uuid.UUID              `json:"updated_with_session,omitempty"`
	Content                *string                 `json:"content"`
	ContentType            string                  `json:"content_type"`
	EncItemKey             *string                 `json:"enc_item_key,omitempty"`
	AuthHash               *string                 `json:"auth_hash,omitempty"`
	ItemsKeyID             *string                 `json:"items_key_id,omitempty"`
	DuplicateOf            *uuid.UUID              `json:"duplicate_of,omitempty"`
	Deleted                bool                    `json:"deleted"`
	Dates                  Dates                   `json:"dates"`
	Timestamps             Timestamps              `json:"timestamps"`
	SharedVaultAssociation *SharedVaultAssociation `json:"shared_vault_association,omitempty"`
	KeySystemAssociation   *KeySystemAssociation   `json:"key_system_association,omitempty"`
}
