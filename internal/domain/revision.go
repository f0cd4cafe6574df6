package domain

import "github.com/google/uuid"

// Revision is an immutable snapshot of an item's payload at one instant.
// Timestamps are UTC microseconds in both stores.
type Revision struct {
	ID          uuid.UUID `json:"uuid"`
	UserID      uuid.UUID `json:"user_uuid"`
	ItemID      uuid.UUID `json:"item_uuid"`
	Content     *string   `json:"content"`
	ContentType *string   `json:"content_type"`
	ItemsKeyID  *string   `json:"items_key_id"`
	EncItemKey  *string   `json:"enc_item_key"`
	AuthHash    *string   `json:"auth_hash"`
	CreatedAt   int64     `json:"created_at_timestamp"`
	UpdatedAt   int64     `json:"updated_at_timestamp"`
}

// Identical reports whether two revisions agree on every payload field and
// both timestamps. Sharing an id is not enough: migration treats copies that
// diverge anywhere as conflicting.
func (r Revision) Identical(other Revision) bool {
	return r.ID == other.ID &&
		r.UserID == other.UserID &&
		r.ItemID == other.ItemID &&
		strPtrEqual(r.Content, other.Content) &&
		strPtrEqual(r.ContentType, other.ContentType) &&
		strPtrEqual(r.ItemsKeyID, other.ItemsKeyID) &&
		strPtrEqual(r.EncItemKey, other.EncItemKey) &&
		strPtrEqual(r.AuthHash, other.AuthHash) &&
		r.CreatedAt == other.CreatedAt &&
		r.UpdatedAt == other.UpdatedAt
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
