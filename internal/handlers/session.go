package handlers

import (
	"net/http"
	"time"

	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/services/auth"
	"github.com/chatmux/chatmux/internal/services/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HandleCreateSession starts an empty session owned by the caller
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.New().String()
	if err := h.sessions.Create(r.Context(), sessionID, auth.UserID(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": sessionID,
		"created_at": time.Now().UTC(),
	})
}

// HandleGetSession returns a session's turns in order
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.ownedSession(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleDeleteSession removes a session
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.ownedSession(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	deleted, err := h.sessions.Delete(r.Context(), session.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeError(w, r, storage.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    h.localizer.Get(h.lang(r), i18n.MsgSessionDeleted, nil),
		"session_id": session.ID,
	})
}

// ownedSession loads the session in the path. Sessions owned by another
// user are reported as missing.
func (h *Handler) ownedSession(r *http.Request) (*storage.Session, error) {
	session, err := h.sessions.Get(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		return nil, err
	}
	if session.OwnerID != "" && session.OwnerID != auth.UserID(r.Context()) {
		return nil, storage.ErrSessionNotFound
	}
	return session, nil
}
