package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaultnote/sync-api/internal/auth"
	"github.com/vaultnote/sync-api/internal/domain"
	"github.com/vaultnote/sync-api/internal/service/itemsync"
)

// SyncItem handles POST /v1/sync/items
// The body is one item hash: the client's full desired state for an existing
// item. Conflict rules live in the itemsync service; this handler only
// translates between HTTP and the use case.
func (s *Server) SyncItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	performingUserID := auth.UserID(ctx)
	sessionID := auth.SessionID(ctx)

	var hash domain.ItemHash
	if err := json.NewDecoder(r.Body).Decode(&hash); err != nil {
		log.Warn().Err(err).Msg("invalid item hash body")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	itemID, err := uuid.Parse(hash.UUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "item id "+hash.UUID+" is not a valid identifier")
		return
	}
	userID, err := uuid.Parse(performingUserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "performing user id "+performingUserID+" is not a valid identifier")
		return
	}

	existing, err := s.Items.FindOneByID(ctx, itemID, userID)
	if err != nil {
		log.Error().Err(err).Str("itemId", itemID.String()).Msg("loading item for sync")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "item "+itemID.String()+" not found")
		return
	}

	updated, err := s.Updater.Execute(ctx, itemsync.UpdateInput{
		Existing:         *existing,
		Hash:             hash,
		SessionID:        sessionID,
		PerformingUserID: performingUserID,
	})
	if err != nil {
		var verr *itemsync.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		log.Error().Err(err).Str("itemId", itemID.String()).Msg("item sync failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// GetItem handles GET /v1/items/{itemUuid}
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	itemID, err := uuid.Parse(chi.URLParam(r, "itemUuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	userID, err := uuid.Parse(auth.UserID(ctx))
	if err != nil {
		writeError(w, http.StatusBadRequest, "performing user id is not a valid identifier")
		return
	}

	item, err := s.Items.FindOneByID(ctx, itemID, userID)
	if err != nil {
		log.Error().Err(err).Str("itemId", itemID.String()).Msg("loading item")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item "+itemID.String()+" not found")
		return
	}

	writeJSON(w, http.StatusOK, item)
}
