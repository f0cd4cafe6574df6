package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/domain"
)

// Event type tags carried in envelope headers.
const (
	TypeTransitionRequested           = "TRANSITION_REQUESTED"
	TypeTransitionStatusUpdated       = "TRANSITION_STATUS_UPDATED"
	TypeItemRevisionCreationRequested = "ITEM_REVISION_CREATION_REQUESTED"
	TypeDuplicateItemSynced           = "DUPLICATE_ITEM_SYNCED"
)

// Envelope is the bus frame: a type tag, the publication instant, and the
// event payload as JSON.
type Envelope struct {
	Type      string          `json:"type"`
	CreatedAt string          `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher puts domain events on the durable bus. Delivery is at-least-once;
// consumers must tolerate replays.
type Publisher interface {
	Publish(ctx context.Context, event Envelope) error
}

// TransitionRequested asks a worker to migrate one (user, type) dataset.
type TransitionRequested struct {
	UserID    string `json:"userId"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// TransitionStatusUpdated reports a lifecycle change of one transition. The
// status store is updated by whichever worker consumes this event, never by
// the migrator directly.
type TransitionStatusUpdated struct {
	UserID              string `json:"userId"`
	Status              string `json:"status"`
	TransitionType      string `json:"transitionType"`
	TransitionTimestamp int64  `json:"transitionTimestamp"`
}

// ItemRevisionCreationRequested asks for a revision snapshot of an item's
// current payload.
type ItemRevisionCreationRequested struct {
	ItemID string `json:"itemId"`
	UserID string `json:"userId"`
}

// DuplicateItemSynced reports that a duplicated item was synced and its
// source's history should be copied over.
type DuplicateItemSynced struct {
	ItemID        string `json:"itemId"`
	DuplicateOfID string `json:"duplicateOfId"`
	UserID        string `json:"userId"`
}

// NewTransitionRequested builds a TRANSITION_REQUESTED envelope.
func NewTransitionRequested(userID uuid.UUID, transitionType domain.TransitionType, timestamp int64) Envelope {
	return envelope(TypeTransitionRequested, TransitionRequested{
		UserID:    userID.String(),
		Type:      string(transitionType),
		Timestamp: timestamp,
	})
}

// NewTransitionStatusUpdated builds a TRANSITION_STATUS_UPDATED envelope.
func NewTransitionStatusUpdated(userID uuid.UUID, status domain.TransitionStatus, transitionType domain.TransitionType, timestamp int64) Envelope {
	return envelope(TypeTransitionStatusUpdated, TransitionStatusUpdated{
		UserID:              userID.String(),
		Status:              string(status),
		TransitionType:      string(transitionType),
		TransitionTimestamp: timestamp,
	})
}

// NewItemRevisionCreationRequested builds an ITEM_REVISION_CREATION_REQUESTED
// envelope.
func NewItemRevisionCreationRequested(itemID, userID uuid.UUID) Envelope {
	return envelope(TypeItemRevisionCreationRequested, ItemRevisionCreationRequested{
		ItemID: itemID.String(),
		UserID: userID.String(),
	})
}

// NewDuplicateItemSynced builds a DUPLICATE_ITEM_SYNCED envelope.
func NewDuplicateItemSynced(itemID, duplicateOfID, userID uuid.UUID) Envelope {
	return envelope(TypeDuplicateItemSynced, DuplicateItemSynced{
		ItemID:        itemID.String(),
		DuplicateOfID: duplicateOfID.String(),
		UserID:        userID.String(),
	})
}

func envelope(eventType string, payload any) Envelope {
	raw, _ := json.Marshal(payload)
	return Envelope{
		Type:      eventType,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   raw,
	}
}
