package transition

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/storage"
	"github.com/vaultnote/sync-api/internal/timex"
)

// DefaultSchedulerPageSize bounds how many users load per page of a run.
const DefaultSchedulerPageSize = 100

// transitionOrder fixes the per-user request order so runs are deterministic.
var transitionOrder = []domain.TransitionType{
	domain.TransitionTypeItems,
	domain.TransitionTypeRevisions,
}

// SchedulerConfig wires a Scheduler. Zero PageSize selects the default.
type SchedulerConfig struct {
	Users     storage.UserRepository
	Statuses  storage.TransitionStatusRepository
	Publisher events.Publisher
	PageSize  int
}

// Scheduler walks accounts created inside a window and requests a transition
// for every (user, type) pair that is not verified yet. The status row is
// removed before each request, which resets both cursors and makes re-runs
// of the same window safe.
type Scheduler struct {
	users     storage.UserRepository
	statuses  storage.TransitionStatusRepository
	publisher events.Publisher
	pageSize  int
}

// Report aggregates one scheduler run.
type Report struct {
	Users     int
	Requested int
	Skipped   int
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultSchedulerPageSize
	}
	return &Scheduler{
		users:     cfg.Users,
		statuses:  cfg.Statuses,
		publisher: cfg.Publisher,
		pageSize:  pageSize,
	}
}

// Execute requests transitions for users created between startDate and
// endDate, both inclusive. Per-user errors are counted and skipped so one
// broken account does not end the run.
func (s *Scheduler) Execute(ctx context.Context, startDate, endDate time.Time, forceRun bool) (Report, error) {
	var report Report
	createdAfter := timex.ToMicros(startDate)
	createdBefore := timex.ToMicros(endDate)

	total, err := s.users.CountCreatedBetween(ctx, createdAfter, createdBefore)
	if err != nil {
		return report, fmt.Errorf("counting users in window: %w", err)
	}
	log.Info().
		Int("users", total).
		Str("startDate", startDate.Format(time.RFC3339)).
		Str("endDate", endDate.Format(time.RFC3339)).
		Bool("forceRun", forceRun).
		Msg("transition scheduling started")

	totalPages := pageCount(total, s.pageSize)
	for page := 1; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		users, err := s.users.FindCreatedBetween(ctx, storage.UserQuery{
			CreatedAfter:  createdAfter,
			CreatedBefore: createdBefore,
			Offset:        (page - 1) * s.pageSize,
			Limit:         s.pageSize,
		})
		if err != nil {
			return report, fmt.Errorf("fetching users page %d: %w", page, err)
		}
		for _, user := range users {
			report.Users++
			requested, err := s.scheduleUser(ctx, user, forceRun)
			if err != nil {
				log.Error().Err(err).Str("userId", user.ID.String()).Msg("skipping user after scheduling error")
				report.Skipped++
				continue
			}
			report.Requested += requested
		}
	}

	log.Info().
		Int("users", report.Users).
		Int("requested", report.Requested).
		Int("skipped", report.Skipped).
		Msg("transition scheduling finished")
	return report, nil
}

func (s *Scheduler) scheduleUser(ctx context.Context, user domain.User, forceRun bool) (int, error) {
	statuses := make(map[domain.TransitionType]*domain.Transition, len(transitionOrder))
	verified := true
	for _, transitionType := range transitionOrder {
		row, err := s.statuses.GetStatus(ctx, user.ID, transitionType)
		if err != nil {
			return 0, fmt.Errorf("reading %s transition status: %w", transitionType, err)
		}
		statuses[transitionType] = row
		if row == nil || row.Status != domain.TransitionStatusVerified {
			verified = false
		}
	}
	// Fully verified users are done unless they carry the retry role.
	if verified && !user.HasRole(domain.RoleTransitionUser) {
		return 0, nil
	}

	requested := 0
	for _, transitionType := range transitionOrder {
		if !shouldRequest(statuses[transitionType], forceRun) {
			continue
		}
		// Dropping the row clears the status and both cursors, so the next
		// migration attempt pages from the start instead of resuming a
		// stale run.
		if err := s.statuses.Remove(ctx, user.ID, transitionType); err != nil {
			return requested, fmt.Errorf("removing %s transition status: %w", transitionType, err)
		}
		event := events.NewTransitionRequested(user.ID, transitionType, timex.NowMicros())
		if err := s.publisher.Publish(ctx, event); err != nil {
			return requested, fmt.Errorf("requesting %s transition: %w", transitionType, err)
		}
		requested++
	}
	return requested, nil
}

func shouldRequest(row *domain.Transition, forceRun bool) bool {
	if row == nil || row.Status == "" {
		return true
	}
	switch row.Status {
	case domain.TransitionStatusFailed:
		return true
	case domain.TransitionStatusInProgress:
		return forceRun
	default:
		return false
	}
}
