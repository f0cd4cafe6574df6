// Package worker dispatches domain events to the services that act on them.
// One Dispatcher instance is shared by all consumers of the bus; everything it
// calls is safe for concurrent use.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/storage"
)

// Migrator runs one user's revision transition.
type Migrator interface {
	Execute(ctx context.Context, userID uuid.UUID) error
}

// RevisionWriter materializes revision history from events.
type RevisionWriter interface {
	CreateFromItem(ctx context.Context, itemID, userID uuid.UUID) error
	CopyHistory(ctx context.Context, itemID, duplicateOfID, userID uuid.UUID) error
}

// Dispatcher routes envelopes by type. Handlers are idempotent, so redelivered
// envelopes are harmless.
type Dispatcher struct {
	migrator  Migrator
	statuses  storage.TransitionStatusRepository
	revisions RevisionWriter
}

func NewDispatcher(migrator Migrator, statuses storage.TransitionStatusRepository, revisions RevisionWriter) *Dispatcher {
	return &Dispatcher{
		migrator:  migrator,
		statuses:  statuses,
		revisions: revisions,
	}
}

// Handle processes one envelope. Unknown event types are skipped without
// error; other services publish to the same stream.
func (d *Dispatcher) Handle(ctx context.Context, env events.Envelope) error {
	switch env.Type {
	case events.TypeTransitionRequested:
		return d.handleTransitionRequested(ctx, env)
	case events.TypeTransitionStatusUpdated:
		return d.handleStatusUpdated(ctx, env)
	case events.TypeItemRevisionCreationRequested:
		return d.handleRevisionRequested(ctx, env)
	case events.TypeDuplicateItemSynced:
		return d.handleDuplicateSynced(ctx, env)
	default:
		log.Debug().Str("type", env.Type).Msg("ignoring event")
		return nil
	}
}

func (d *Dispatcher) handleTransitionRequested(ctx context.Context, env events.Envelope) error {
	var e events.TransitionRequested
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		return fmt.Errorf("decoding transition request: %w", err)
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return fmt.Errorf("transition request has invalid user id %q: %w", e.UserID, err)
	}
	transitionType, err := domain.ParseTransitionType(e.Type)
	if err != nil {
		return fmt.Errorf("transition request for user %s: %w", userID, err)
	}
	// Only revision history still migrates; the items dataset finished its
	// move before this service generation and its requests are retired.
	if transitionType != domain.TransitionTypeRevisions {
		log.Info().
			Str("userId", userID.String()).
			Str("type", string(transitionType)).
			Msg("skipping retired transition type")
		return nil
	}
	return d.migrator.Execute(ctx, userID)
}

func (d *Dispatcher) handleStatusUpdated(ctx context.Context, env events.Envelope) error {
	var e events.TransitionStatusUpdated
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		return fmt.Errorf("decoding status update: %w", err)
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return fmt.Errorf("status update has invalid user id %q: %w", e.UserID, err)
	}
	transitionType, err := domain.ParseTransitionType(e.TransitionType)
	if err != nil {
		return fmt.Errorf("status update for user %s: %w", userID, err)
	}
	status, err := domain.ParseTransitionStatus(e.Status)
	if err != nil {
		return fmt.Errorf("status update for user %s: %w", userID, err)
	}
	if err := d.statuses.SetStatus(ctx, userID, transitionType, status, e.TransitionTimestamp); err != nil {
		return fmt.Errorf("recording %s status for user %s: %w", status, userID, err)
	}
	return nil
}

func (d *Dispatcher) handleRevisionRequested(ctx context.Context, env events.Envelope) error {
	var e events.ItemRevisionCreationRequested
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		return fmt.Errorf("decoding revision request: %w", err)
	}
	itemID, err := uuid.Parse(e.ItemID)
	if err != nil {
		return fmt.Errorf("revision request has invalid item id %q: %w", e.ItemID, err)
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return fmt.Errorf("revision request has invalid user id %q: %w", e.UserID, err)
	}
	return d.revisions.CreateFromItem(ctx, itemID, userID)
}

func (d *Dispatcher) handleDuplicateSynced(ctx context.Context, env events.Envelope) error {
	var e events.DuplicateItemSynced
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		return fmt.Errorf("decoding duplicate sync: %w", err)
	}
	itemID, err := uuid.Parse(e.ItemID)
	if err != nil {
		return fmt.Errorf("duplicate sync has invalid item id %q: %w", e.ItemID, err)
	}
	duplicateOfID, err := uuid.Parse(e.DuplicateOfID)
	if err != nil {
		return fmt.Errorf("duplicate sync has invalid source id %q: %w", e.DuplicateOfID, err)
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return fmt.Errorf("duplicate sync has invalid user id %q: %w", e.UserID, err)
	}
	return d.revisions.CopyHistory(ctx, itemID, duplicateOfID, userID)
}
