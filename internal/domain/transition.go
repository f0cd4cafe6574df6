package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TransitionType identifies which per-user dataset a transition covers.
type TransitionType string

const (
	TransitionTypeItems     TransitionType = "items"
	TransitionTypeRevisions TransitionType = "revisions"
)

// ParseTransitionType validates a wire-level transition type string.
func ParseTransitionType(s string) (TransitionType, error) {
	switch TransitionType(s) {
	case TransitionTypeItems:
		return TransitionTypeItems, nil
	case TransitionTypeRevisions:
		return TransitionTypeRevisions, nil
	}
	return "", fmt.Errorf("unknown transition type %q", s)
}

// TransitionStatus is the lifecycle state reported for one (user, type)
// transition.
type TransitionStatus string

const (
	TransitionStatusInProgress TransitionStatus = "IN_PROGRESS"
	TransitionStatusVerified   TransitionStatus = "VERIFIED"
	TransitionStatusFailed     TransitionStatus = "FAILED"
)

// ParseTransitionStatus validates a wire-level status string.
func ParseTransitionStatus(s string) (TransitionStatus, error) {
	switch TransitionStatus(s) {
	case TransitionStatusInProgress:
		return TransitionStatusInProgress, nil
	case TransitionStatusVerified:
		return TransitionStatusVerified, nil
	case TransitionStatusFailed:
		return TransitionStatusFailed, nil
	}
	return "", fmt.Errorf("unknown transition status %q", s)
}

// Transition is the durable progress row for one (user, type) pair. Status
// stays empty until the first status event lands; both cursors start at 1.
type Transition struct {
	UserID            uuid.UUID        `json:"user_uuid"`
	Type              TransitionType   `json:"transition_type"`
	Status            TransitionStatus `json:"status,omitempty"`
	PagingProgress    int              `json:"paging_progress"`
	IntegrityProgress int              `json:"integrity_progress"`
	CreatedAt         int64            `json:"created_at_timestamp"`
	UpdatedAt         int64            `json:"updated_at_timestamp"`
}
