package transition

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/timex"
)

var (
	windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
)

func makeUser(createdAt int64, roles ...string) domain.User {
	return domain.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("user-%d@example.com", createdAt),
		Roles:     roles,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func inWindowAt(monthOffset int) int64 {
	return timex.ToMicros(windowStart.AddDate(0, monthOffset, 0))
}

func TestSchedulerRequestsBothTypesForNewUser(t *testing.T) {
	user := makeUser(inWindowAt(1))
	ops := &opLog{}
	users := &fakeUserRepo{users: []domain.User{user}}
	statuses := newFakeStatusRepo(ops)
	pub := newFakePublisher(ops)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Users != 1 || report.Requested != 2 || report.Skipped != 0 {
		t.Errorf("report = %+v, want {Users:1 Requested:2 Skipped:0}", report)
	}
	if got := pub.requestedTypes(); !reflect.DeepEqual(got, []string{"items", "revisions"}) {
		t.Errorf("requested types = %v, want [items revisions]", got)
	}

	// The status row goes away before each request so the migration starts
	// from a clean slate.
	want := []string{
		"remove:items", "publish:requested:items",
		"remove:revisions", "publish:requested:revisions",
	}
	if got := ops.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("op order = %v, want %v", got, want)
	}
}

func TestSchedulerSkipsVerifiedUser(t *testing.T) {
	user := makeUser(inWindowAt(1))
	users := &fakeUserRepo{users: []domain.User{user}}
	statuses := newFakeStatusRepo(nil)
	statuses.seedStatus(user.ID, domain.TransitionTypeItems, domain.TransitionStatusVerified)
	statuses.seedStatus(user.ID, domain.TransitionTypeRevisions, domain.TransitionStatusVerified)
	pub := newFakePublisher(nil)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Requested != 0 {
		t.Errorf("requested = %d, want 0", report.Requested)
	}
	if len(statuses.removedKeys) != 0 {
		t.Errorf("verified rows must stay, removed %v", statuses.removedKeys)
	}
	if len(pub.events) != 0 {
		t.Errorf("no events expected, got %d", len(pub.events))
	}
}

func TestSchedulerRetriesFailedTypeOnly(t *testing.T) {
	user := makeUser(inWindowAt(2))
	users := &fakeUserRepo{users: []domain.User{user}}
	statuses := newFakeStatusRepo(nil)
	statuses.seedStatus(user.ID, domain.TransitionTypeItems, domain.TransitionStatusVerified)
	statuses.seedStatus(user.ID, domain.TransitionTypeRevisions, domain.TransitionStatusFailed)
	pub := newFakePublisher(nil)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Requested != 1 {
		t.Errorf("requested = %d, want 1", report.Requested)
	}
	if got := pub.requestedTypes(); !reflect.DeepEqual(got, []string{"revisions"}) {
		t.Errorf("requested types = %v, want [revisions]", got)
	}
	if _, ok := statuses.row(user.ID, domain.TransitionTypeItems); !ok {
		t.Error("verified items row must survive the run")
	}
}

func TestSchedulerInProgressNeedsForceRun(t *testing.T) {
	for _, tc := range []struct {
		name     string
		forceRun bool
		want     int
	}{
		{"without force", false, 0},
		{"with force", true, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			user := makeUser(inWindowAt(3))
			users := &fakeUserRepo{users: []domain.User{user}}
			statuses := newFakeStatusRepo(nil)
			statuses.seedStatus(user.ID, domain.TransitionTypeItems, domain.TransitionStatusInProgress)
			statuses.seedStatus(user.ID, domain.TransitionTypeRevisions, domain.TransitionStatusInProgress)
			pub := newFakePublisher(nil)

			s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
			report, err := s.Execute(context.Background(), windowStart, windowEnd, tc.forceRun)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Requested != tc.want {
				t.Errorf("requested = %d, want %d", report.Requested, tc.want)
			}
		})
	}
}

func TestSchedulerVerifiedRoleUserRequestsNothing(t *testing.T) {
	// The retry role carries the user past the all-verified skip, but the
	// per-type rules still leave verified rows alone.
	user := makeUser(inWindowAt(4), domain.RoleTransitionUser)
	users := &fakeUserRepo{users: []domain.User{user}}
	statuses := newFakeStatusRepo(nil)
	statuses.seedStatus(user.ID, domain.TransitionTypeItems, domain.TransitionStatusVerified)
	statuses.seedStatus(user.ID, domain.TransitionTypeRevisions, domain.TransitionStatusVerified)
	pub := newFakePublisher(nil)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Requested != 0 {
		t.Errorf("requested = %d, want 0", report.Requested)
	}
}

func TestSchedulerRoleUserWithFailureRetries(t *testing.T) {
	user := makeUser(inWindowAt(4), domain.RoleTransitionUser)
	users := &fakeUserRepo{users: []domain.User{user}}
	statuses := newFakeStatusRepo(nil)
	statuses.seedStatus(user.ID, domain.TransitionTypeItems, domain.TransitionStatusVerified)
	statuses.seedStatus(user.ID, domain.TransitionTypeRevisions, domain.TransitionStatusFailed)
	pub := newFakePublisher(nil)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pub.requestedTypes(); !reflect.DeepEqual(got, []string{"revisions"}) {
		t.Errorf("requested types = %v, want [revisions]", got)
	}
	if report.Requested != 1 {
		t.Errorf("requested = %d, want 1", report.Requested)
	}
}

func TestSchedulerPagesThroughWindow(t *testing.T) {
	all := make([]domain.User, 0, 5)
	for i := 0; i < 5; i++ {
		all = append(all, makeUser(inWindowAt(i+1)))
	}
	users := &fakeUserRepo{users: all}
	statuses := newFakeStatusRepo(nil)
	pub := newFakePublisher(nil)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub, PageSize: 2})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(users.fetchOffsets, []int{0, 2, 4}) {
		t.Errorf("fetch offsets = %v, want [0 2 4]", users.fetchOffsets)
	}
	if report.Users != 5 || report.Requested != 10 {
		t.Errorf("report = %+v, want {Users:5 Requested:10}", report)
	}
}

func TestSchedulerSkipsUserOnStatusError(t *testing.T) {
	broken := makeUser(inWindowAt(1))
	healthy := makeUser(inWindowAt(2))
	users := &fakeUserRepo{users: []domain.User{broken, healthy}}
	statuses := newFakeStatusRepo(nil)
	statuses.failStatusFor[broken.ID] = errors.New("connection reset")
	pub := newFakePublisher(nil)

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("per-user errors must not end the run: %v", err)
	}

	if report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", report.Skipped)
	}
	if report.Requested != 2 {
		t.Errorf("requested = %d, want 2 for the healthy user", report.Requested)
	}
}

func TestSchedulerCountsPublishFailuresAsSkipped(t *testing.T) {
	users := &fakeUserRepo{users: []domain.User{makeUser(inWindowAt(1)), makeUser(inWindowAt(2))}}
	statuses := newFakeStatusRepo(nil)
	pub := newFakePublisher(nil)
	pub.err = errors.New("stream unavailable")

	s := NewScheduler(SchedulerConfig{Users: users, Statuses: statuses, Publisher: pub})
	report, err := s.Execute(context.Background(), windowStart, windowEnd, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 2 || report.Requested != 0 {
		t.Errorf("report = %+v, want {Skipped:2 Requested:0}", report)
	}
}
