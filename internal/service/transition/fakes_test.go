package transition

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/storage"
)

// opLog records cross-fake operation order for tests that assert sequencing.
// A nil log is a no-op so fakes can be used without one.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeRevisionRepo struct {
	mu    sync.Mutex
	name  string
	log   *opLog
	order []uuid.UUID
	byID  map[uuid.UUID]domain.Revision

	countErr     error
	findErr      error
	insertErr    error
	removeAllErr error
	failFindOne  map[uuid.UUID]error
	// dropInserts makes Insert report success without storing, simulating a
	// store that loses writes.
	dropInserts bool

	fetchOffsets []int
	inserted     []uuid.UUID
	removed      []uuid.UUID
}

func newFakeRevisionRepo(name string, log *opLog) *fakeRevisionRepo {
	return &fakeRevisionRepo{
		name:        name,
		log:         log,
		byID:        map[uuid.UUID]domain.Revision{},
		failFindOne: map[uuid.UUID]error{},
	}
}

func (f *fakeRevisionRepo) seed(revs ...domain.Revision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rev := range revs {
		if _, ok := f.byID[rev.ID]; !ok {
			f.order = append(f.order, rev.ID)
		}
		f.byID[rev.ID] = rev
	}
}

func (f *fakeRevisionRepo) forUser(userID uuid.UUID) []domain.Revision {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Revision, 0)
	for _, id := range f.order {
		if rev, ok := f.byID[id]; ok && rev.UserID == userID {
			out = append(out, rev)
		}
	}
	return out
}

func (f *fakeRevisionRepo) CountByUserID(_ context.Context, userID uuid.UUID) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.forUser(userID)), nil
}

func (f *fakeRevisionRepo) FindByUserID(_ context.Context, q storage.RevisionQuery) ([]domain.Revision, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	f.fetchOffsets = append(f.fetchOffsets, q.Offset)
	f.mu.Unlock()
	f.log.add(fmt.Sprintf("%s.fetch:%d", f.name, q.Offset))

	all := f.forUser(q.UserID)
	if q.Offset >= len(all) {
		return nil, nil
	}
	end := q.Offset + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return append([]domain.Revision(nil), all[q.Offset:end]...), nil
}

func (f *fakeRevisionRepo) FindOneByID(_ context.Context, id, userID uuid.UUID) (*domain.Revision, error) {
	if err := f.failFindOne[id]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.byID[id]
	if !ok || rev.UserID != userID {
		return nil, nil
	}
	out := rev
	return &out, nil
}

func (f *fakeRevisionRepo) FindByItemID(_ context.Context, itemID, userID uuid.UUID) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Revision, 0)
	for _, id := range f.order {
		if rev, ok := f.byID[id]; ok && rev.ItemID == itemID && rev.UserID == userID {
			out = append(out, rev)
		}
	}
	return out, nil
}

func (f *fakeRevisionRepo) Insert(_ context.Context, revision domain.Revision) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, revision.ID)
	if f.dropInserts {
		return true, nil
	}
	if _, ok := f.byID[revision.ID]; ok {
		return false, nil
	}
	f.byID[revision.ID] = revision
	f.order = append(f.order, revision.ID)
	return true, nil
}

func (f *fakeRevisionRepo) RemoveOneByID(_ context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.byID[id]
	if ok && rev.UserID == userID {
		delete(f.byID, id)
		for i, oid := range f.order {
			if oid == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
		f.removed = append(f.removed, id)
	}
	return nil
}

func (f *fakeRevisionRepo) RemoveByUserID(_ context.Context, userID uuid.UUID) error {
	if f.removeAllErr != nil {
		return f.removeAllErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.order[:0]
	for _, id := range f.order {
		if rev, ok := f.byID[id]; ok && rev.UserID == userID {
			delete(f.byID, id)
			f.removed = append(f.removed, id)
			continue
		}
		kept = append(kept, id)
	}
	f.order = kept
	return nil
}

type statusKey struct {
	user uuid.UUID
	t    domain.TransitionType
}

type fakeStatusRepo struct {
	mu   sync.Mutex
	log  *opLog
	rows map[statusKey]domain.Transition

	failStatusFor map[uuid.UUID]error
	setPagingErr  error
	removeErr     error

	pagingWrites    []int
	integrityWrites []int
	removedKeys     []statusKey
}

func newFakeStatusRepo(log *opLog) *fakeStatusRepo {
	return &fakeStatusRepo{
		log:           log,
		rows:          map[statusKey]domain.Transition{},
		failStatusFor: map[uuid.UUID]error{},
	}
}

func (f *fakeStatusRepo) seedStatus(userID uuid.UUID, t domain.TransitionType, status domain.TransitionStatus) {
	f.seedRow(domain.Transition{UserID: userID, Type: t, Status: status, PagingProgress: 1, IntegrityProgress: 1})
}

func (f *fakeStatusRepo) seedRow(row domain.Transition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[statusKey{row.UserID, row.Type}] = row
}

func (f *fakeStatusRepo) row(userID uuid.UUID, t domain.TransitionType) (domain.Transition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[statusKey{userID, t}]
	return row, ok
}

func (f *fakeStatusRepo) GetStatus(_ context.Context, userID uuid.UUID, t domain.TransitionType) (*domain.Transition, error) {
	if err := f.failStatusFor[userID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[statusKey{userID, t}]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (f *fakeStatusRepo) SetStatus(_ context.Context, userID uuid.UUID, t domain.TransitionType, status domain.TransitionStatus, timestamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := statusKey{userID, t}
	row, ok := f.rows[key]
	if !ok {
		row = domain.Transition{UserID: userID, Type: t, PagingProgress: 1, IntegrityProgress: 1, CreatedAt: timestamp}
	}
	row.Status = status
	row.UpdatedAt = timestamp
	f.rows[key] = row
	return nil
}

func (f *fakeStatusRepo) GetPagingProgress(_ context.Context, userID uuid.UUID, t domain.TransitionType) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[statusKey{userID, t}]; ok {
		return row.PagingProgress, nil
	}
	return 1, nil
}

func (f *fakeStatusRepo) SetPagingProgress(_ context.Context, userID uuid.UUID, t domain.TransitionType, page int) error {
	if f.setPagingErr != nil {
		return f.setPagingErr
	}
	f.mu.Lock()
	key := statusKey{userID, t}
	row, ok := f.rows[key]
	if !ok {
		row = domain.Transition{UserID: userID, Type: t, PagingProgress: 1, IntegrityProgress: 1}
	}
	row.PagingProgress = page
	f.rows[key] = row
	f.pagingWrites = append(f.pagingWrites, page)
	f.mu.Unlock()
	f.log.add(fmt.Sprintf("paging:%d", page))
	return nil
}

func (f *fakeStatusRepo) GetIntegrityProgress(_ context.Context, userID uuid.UUID, t domain.TransitionType) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[statusKey{userID, t}]; ok {
		return row.IntegrityProgress, nil
	}
	return 1, nil
}

func (f *fakeStatusRepo) SetIntegrityProgress(_ context.Context, userID uuid.UUID, t domain.TransitionType, page int) error {
	f.mu.Lock()
	key := statusKey{userID, t}
	row, ok := f.rows[key]
	if !ok {
		row = domain.Transition{UserID: userID, Type: t, PagingProgress: 1, IntegrityProgress: 1}
	}
	row.IntegrityProgress = page
	f.rows[key] = row
	f.integrityWrites = append(f.integrityWrites, page)
	f.mu.Unlock()
	f.log.add(fmt.Sprintf("integrity:%d", page))
	return nil
}

func (f *fakeStatusRepo) Remove(_ context.Context, userID uuid.UUID, t domain.TransitionType) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	key := statusKey{userID, t}
	delete(f.rows, key)
	f.removedKeys = append(f.removedKeys, key)
	f.mu.Unlock()
	f.log.add("remove:" + string(t))
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	log    *opLog
	events []events.Envelope
	err    error
}

func newFakePublisher(log *opLog) *fakePublisher {
	return &fakePublisher{log: log}
}

func (p *fakePublisher) Publish(_ context.Context, env events.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.events = append(p.events, env)
	p.mu.Unlock()

	switch env.Type {
	case events.TypeTransitionStatusUpdated:
		var e events.TransitionStatusUpdated
		_ = json.Unmarshal(env.Payload, &e)
		p.log.add("publish:" + e.Status)
	case events.TypeTransitionRequested:
		var e events.TransitionRequested
		_ = json.Unmarshal(env.Payload, &e)
		p.log.add("publish:requested:" + e.Type)
	default:
		p.log.add("publish:" + env.Type)
	}
	return nil
}

// statusSequence decodes the status of every TRANSITION_STATUS_UPDATED event
// in publish order.
func (p *fakePublisher) statusSequence() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, env := range p.events {
		if env.Type != events.TypeTransitionStatusUpdated {
			continue
		}
		var e events.TransitionStatusUpdated
		_ = json.Unmarshal(env.Payload, &e)
		out = append(out, e.Status)
	}
	return out
}

// requestedTypes decodes the type of every TRANSITION_REQUESTED event in
// publish order.
func (p *fakePublisher) requestedTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, env := range p.events {
		if env.Type != events.TypeTransitionRequested {
			continue
		}
		var e events.TransitionRequested
		_ = json.Unmarshal(env.Payload, &e)
		out = append(out, e.Type)
	}
	return out
}

type fakeUserRepo struct {
	mu           sync.Mutex
	users        []domain.User
	fetchOffsets []int
	countErr     error
	findErr      error
}

func (f *fakeUserRepo) inWindow(createdAfter, createdBefore int64) []domain.User {
	out := make([]domain.User, 0)
	for _, u := range f.users {
		if u.CreatedAt >= createdAfter && u.CreatedAt <= createdBefore {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeUserRepo) CountCreatedBetween(_ context.Context, createdAfter, createdBefore int64) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.inWindow(createdAfter, createdBefore)), nil
}

func (f *fakeUserRepo) FindCreatedBetween(_ context.Context, q storage.UserQuery) ([]domain.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	f.fetchOffsets = append(f.fetchOffsets, q.Offset)
	f.mu.Unlock()

	all := f.inWindow(q.CreatedAfter, q.CreatedBefore)
	if q.Offset >= len(all) {
		return nil, nil
	}
	end := q.Offset + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return append([]domain.User(nil), all[q.Offset:end]...), nil
}

func makeRevision(userID uuid.UUID, createdAt int64, content string) domain.Revision {
	c := content
	ct := "Note"
	return domain.Revision{
		ID:          uuid.New(),
		UserID:      userID,
		ItemID:      uuid.New(),
		Content:     &c,
		ContentType: &ct,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func makeRevisions(userID uuid.UUID, n int) []domain.Revision {
	revs := make([]domain.Revision, 0, n)
	for i := 0; i < n; i++ {
		revs = append(revs, makeRevision(userID, int64(100+i), fmt.Sprintf("cipher-%d", i)))
	}
	return revs
}

func newTestMigrator(primary, secondary *fakeRevisionRepo, statuses *fakeStatusRepo, pub *fakePublisher, pageSize int) *Migrator {
	return NewMigrator(MigratorConfig{
		Primary:         primary,
		Secondary:       secondary,
		Statuses:        statuses,
		Publisher:       pub,
		PageSize:        pageSize,
		ReplicationWait: time.Millisecond,
	})
}
