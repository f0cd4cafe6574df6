// Package transition drains per-user revision history out of the legacy
// (secondary) database into the primary one, verifies the copy, and reports
// lifecycle through status events. Durable page cursors make every stage
// resumable after a crash.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/storage"
	"github.com/vaultnote/sync-api/internal/timex"
)

const (
	// DefaultPageSize bounds how many revisions move per fetch.
	DefaultPageSize = 100
	// DefaultReplicationWait covers replica lag between a write to the
	// primary and the next read of the same rows.
	DefaultReplicationWait = 2 * time.Second
)

// ErrNotConfigured marks missing wiring (no secondary store, no status
// store). That is an operator problem, not a per-user migration failure.
var ErrNotConfigured = errors.New("transition engine not configured")

// MigratorConfig wires a Migrator. Zero PageSize and ReplicationWait select
// the defaults.
type MigratorConfig struct {
	Primary         storage.RevisionRepository
	Secondary       storage.RevisionRepository
	Statuses        storage.TransitionStatusRepository
	Publisher       events.Publisher
	PageSize        int
	ReplicationWait time.Duration
}

// Migrator runs the revision transition state machine for one user at a
// time. The scheduler serializes requests per user, so no instance-level
// locking happens here.
type Migrator struct {
	primary         storage.RevisionRepository
	secondary       storage.RevisionRepository
	statuses        storage.TransitionStatusRepository
	publisher       events.Publisher
	verifier        *IntegrityVerifier
	pageSize        int
	replicationWait time.Duration
}

func NewMigrator(cfg MigratorConfig) *Migrator {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	wait := cfg.ReplicationWait
	if wait <= 0 {
		wait = DefaultReplicationWait
	}
	return &Migrator{
		primary:         cfg.Primary,
		secondary:       cfg.Secondary,
		statuses:        cfg.Statuses,
		publisher:       cfg.Publisher,
		verifier:        NewIntegrityVerifier(cfg.Primary, cfg.Secondary, cfg.Statuses, pageSize),
		pageSize:        pageSize,
		replicationWait: wait,
	}
}

// Execute migrates one user's revision history. Users with nothing left in
// the secondary store short-circuit straight to Verified: their history
// either moved already or never existed, and both mean done.
func (m *Migrator) Execute(ctx context.Context, userID uuid.UUID) error {
	if m.secondary == nil {
		return fmt.Errorf("%w: secondary revision store is not set", ErrNotConfigured)
	}
	if m.statuses == nil {
		return fmt.Errorf("%w: transition status store is not set", ErrNotConfigured)
	}

	logger := log.With().Str("userId", userID.String()).Logger()

	secondaryCount, err := m.secondary.CountByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("counting revisions in secondary store for user %s: %w", userID, err)
	}
	if secondaryCount == 0 {
		logger.Info().Msg("no revisions in secondary store, nothing to migrate")
		return m.publishStatus(ctx, userID, domain.TransitionStatusVerified)
	}

	if err := m.publishStatus(ctx, userID, domain.TransitionStatusInProgress); err != nil {
		return err
	}
	startedAt := timex.NowMicros()

	if err := m.migrateRevisions(ctx, userID, secondaryCount, logger); err != nil {
		// Cancellation is not a failure: the cursors persist and the status
		// stays InProgress, so the next attempt resumes where this one
		// stopped.
		if ctx.Err() != nil {
			logger.Warn().Err(err).Msg("revision migration interrupted")
			return err
		}
		logger.Error().Err(err).Msg("revision migration failed")
		m.publishFailed(ctx, userID, logger)
		return err
	}

	// Let replicas of the primary observe the copied rows before the
	// integrity pass reads them back. Only cancellation ends the wait early,
	// and that leaves the run resumable, not failed.
	if err := m.pause(ctx); err != nil {
		return err
	}

	if err := m.verifier.Check(ctx, userID); err != nil {
		if ctx.Err() != nil {
			logger.Warn().Err(err).Msg("integrity check interrupted")
			return err
		}
		logger.Error().Err(err).Msg("integrity check failed")
		// Cursors reset before the status goes out: even if the process
		// dies in between, the next attempt starts from page 1.
		m.resetProgress(ctx, userID, logger)
		m.publishFailed(ctx, userID, logger)
		return err
	}

	if err := m.secondary.RemoveByUserID(ctx, userID); err != nil {
		logger.Error().Err(err).Msg("secondary store cleanup failed")
		m.publishFailed(ctx, userID, logger)
		return fmt.Errorf("cleaning up revisions in secondary store for user %s: %w", userID, err)
	}

	if err := m.publishStatus(ctx, userID, domain.TransitionStatusVerified); err != nil {
		return err
	}
	logger.Info().
		Int("revisions", secondaryCount).
		Int64("durationMicros", timex.NowMicros()-startedAt).
		Msg("revision transition verified")
	return nil
}

func (m *Migrator) migrateRevisions(ctx context.Context, userID uuid.UUID, secondaryCount int, logger zerolog.Logger) error {
	totalPages := pageCount(secondaryCount, m.pageSize)
	initialPage, err := m.statuses.GetPagingProgress(ctx, userID, domain.TransitionTypeRevisions)
	if err != nil {
		return fmt.Errorf("reading paging progress for user %s: %w", userID, err)
	}

	// A keep-alive status goes out roughly every 10% of the run so large
	// histories do not look stalled.
	keepAliveEvery := (totalPages + 9) / 10

	for page := initialPage; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migration interrupted for user %s: %w", userID, err)
		}
		if keepAliveEvery > 0 && page%keepAliveEvery == 0 {
			if err := m.publishStatus(ctx, userID, domain.TransitionStatusInProgress); err != nil {
				return err
			}
		}
		// The cursor is persisted before the fetch so an interrupted run
		// resumes on this page instead of repeating completed ones.
		if err := m.statuses.SetPagingProgress(ctx, userID, domain.TransitionTypeRevisions, page); err != nil {
			return fmt.Errorf("persisting paging progress for user %s: %w", userID, err)
		}

		revisions, err := m.secondary.FindByUserID(ctx, storage.RevisionQuery{
			UserID: userID,
			Offset: (page - 1) * m.pageSize,
			Limit:  m.pageSize,
		})
		if err != nil {
			return fmt.Errorf("fetching revisions page %d for user %s: %w", page, userID, err)
		}

		for _, revision := range revisions {
			if err := m.migrateRevision(ctx, revision); err != nil {
				// One bad revision must not sink the whole history. The
				// integrity pass catches anything actually left behind.
				logger.Warn().Err(err).Str("revisionId", revision.ID.String()).Msg("skipping revision")
			}
		}
	}
	return nil
}

func (m *Migrator) migrateRevision(ctx context.Context, revision domain.Revision) error {
	existing, err := m.primary.FindOneByID(ctx, revision.ID, revision.UserID)
	if err != nil {
		return fmt.Errorf("looking up revision in primary store: %w", err)
	}
	if existing != nil {
		if existing.UpdatedAt > revision.UpdatedAt {
			// The primary copy moved ahead of the legacy one; it stays.
			return nil
		}
		if existing.Identical(revision) {
			return nil
		}
		if err := m.primary.RemoveOneByID(ctx, revision.ID, revision.UserID); err != nil {
			return fmt.Errorf("removing conflicting revision from primary store: %w", err)
		}
		if err := m.pause(ctx); err != nil {
			return err
		}
	}
	if _, err := m.primary.Insert(ctx, revision); err != nil {
		return fmt.Errorf("inserting revision into primary store: %w", err)
	}
	return nil
}

// resetProgress rewinds both cursors to 1. Failures here are logged, not
// returned: the migration already failed and the Failed status must still go
// out.
func (m *Migrator) resetProgress(ctx context.Context, userID uuid.UUID, logger zerolog.Logger) {
	if err := m.statuses.SetPagingProgress(ctx, userID, domain.TransitionTypeRevisions, 1); err != nil {
		logger.Error().Err(err).Msg("resetting paging progress")
	}
	if err := m.statuses.SetIntegrityProgress(ctx, userID, domain.TransitionTypeRevisions, 1); err != nil {
		logger.Error().Err(err).Msg("resetting integrity progress")
	}
}

func (m *Migrator) publishStatus(ctx context.Context, userID uuid.UUID, status domain.TransitionStatus) error {
	event := events.NewTransitionStatusUpdated(userID, status, domain.TransitionTypeRevisions, timex.NowMicros())
	if err := m.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing %s status for user %s: %w", status, userID, err)
	}
	return nil
}

func (m *Migrator) publishFailed(ctx context.Context, userID uuid.UUID, logger zerolog.Logger) {
	if err := m.publishStatus(ctx, userID, domain.TransitionStatusFailed); err != nil {
		logger.Error().Err(err).Msg("publishing failed status")
	}
}

// pause waits out the replication allowance without holding a cancelled
// context hostage.
func (m *Migrator) pause(ctx context.Context) error {
	timer := time.NewTimer(m.replicationWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func pageCount(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
