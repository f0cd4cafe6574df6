package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/vaultnote/sync-api/internal/auth"
	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/events"
	"github.com/vaultnote/sync-api/internal/service/itemsync"
)

// memItems is an in-memory ItemRepository for handler tests.
type memItems struct {
	mu      sync.Mutex
	items   map[uuid.UUID]domain.Item
	findErr error
	saveErr error
}

func newMemItems() *memItems {
	return &memItems{items: map[uuid.UUID]domain.Item{}}
}

func (m *memItems) put(item domain.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *memItems) FindOneByID(_ context.Context, id, userID uuid.UUID) (*domain.Item, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.UserID != userID {
		return nil, nil
	}
	out := item
	return &out, nil
}

func (m *memItems) Save(_ context.Context, item *domain.Item) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = *item
	return nil
}

// memBus records published envelopes.
type memBus struct {
	mu        sync.Mutex
	envelopes []events.Envelope
}

func (m *memBus) Publish(_ context.Context, env events.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelopes = append(m.envelopes, env)
	return nil
}

func (m *memBus) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.envelopes))
	for _, env := range m.envelopes {
		out = append(out, env.Type)
	}
	return out
}

// newTestRouter builds a DevMode router over in-memory fakes and a real
// updater, so handler tests exercise the full request path.
func newTestRouter() (http.Handler, *memItems, *memBus) {
	items := newMemItems()
	bus := &memBus{}
	srv := &Server{
		Items:           items,
		Updater:         itemsync.NewUpdater(items, bus),
		RateLimitConfig: DefaultRateLimitConfig,
	}
	return srv.Routes(auth.JWTCfg{HS256Secret: "test-secret", DevMode: true}), items, bus
}

// doRequest makes an HTTP request with the DevMode debug identity headers.
func doRequest(t *testing.T, router http.Handler, method, path string, body any, sub, session string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader *bytes.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		req.Header.Set("X-Debug-Sub", sub)
	}
	if session != "" {
		req.Header.Set("X-Debug-Session", session)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
