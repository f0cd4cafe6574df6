package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/auth"
	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/service/itemsync"
	"github.com/vaultnote/sync-api/internal/storage"
)

// ItemUpdater applies one validated hash to an existing item.
type ItemUpdater interface {
	Execute(ctx context.Context, in itemsync.UpdateInput) (domain.Item, error)
}

// Server holds dependencies for HTTP handlers
type Server struct {
	Items           storage.ItemRepository
	Updater         ItemUpdater
	RateLimitConfig RateLimitInfo
}

// errResp is the error body for every non-2xx response
type errResp struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errResp{Error: msg})
}

// Routes creates the HTTP router with all sync endpoints
func (s *Server) Routes(jwt auth.JWTCfg) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorrelationMiddleware)

	// Health check (unauthenticated)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	// All item endpoints require authentication
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwt))
		r.Use(RateLimit(s.RateLimitConfig))

		r.Post("/v1/sync/items", s.SyncItem)
		r.Get("/v1/items/{itemUuid}", s.GetItem)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
