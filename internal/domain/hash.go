package domain

// ItemHash is the client-submitted desired state for one item, exactly as the
// sync payload carries it. Pointer fields distinguish absent from empty so
// the update rules can tell which form of each value the client sent.
type ItemHash struct {
	UUID                string  `json:"uuid"`
	Content             *string `json:"content,omitempty"`
	ContentType         string  `json:"content_type"`
	Deleted             *bool   `json:"deleted,omitempty"`
	EncItemKey          *string `json:"enc_item_key,omitempty"`
	AuthHash            *string `json:"auth_hash,omitempty"`
	ItemsKeyID          *string `json:"items_key_id,omitempty"`
	DuplicateOf         *string `json:"duplicate_of,omitempty"`
	CreatedAt           *string `json:"created_at,omitempty"`
	UpdatedAt           *string `json:"updated_at,omitempty"`
	CreatedAtTimestamp  *int64  `json:"created_at_timestamp,omitempty"`
	UpdatedAtTimestamp  *int64  `json:"updated_at_timestamp,omitempty"`
	SharedVaultUUID     *string `json:"shared_vault_uuid,omitempty"`
	KeySystemIdentifier *string `json:"key_system_identifier,omitempty"`
}

// HasCreationTime reports whether the hash carries a creation instant in
// either accepted form.
func (h ItemHash) HasCreationTime() bool {
	return h.CreatedAtTimestamp != nil || (h.CreatedAt != nil && *h.CreatedAt != "")
}
