package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/session"
	"github.com/ayusman/facewatch/internal/store"
)

// SessionController is the part of session.Controller the API drives.
type SessionController interface {
	Start(ctx context.Context) error
	Stop() error
	State() session.State
	Stats() session.Stats
	SessionID() string
	LastError() error
}

// SessionHandler handles /api/session and its start/stop actions.
type SessionHandler struct {
	controller SessionController
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(c SessionController) *SessionHandler {
	return &SessionHandler{controller: c}
}

type sessionResponse struct {
	ID        string        `json:"id,omitempty"`
	State     session.State `json:"state"`
	Stats     session.Stats `json:"stats"`
	LastError string        `json:"last_error,omitempty"`
}

// ServeHTTP routes /api/session, /api/session/start and /api/session/stop.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/session")
	action = strings.Trim(action, "/")

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.status())
	case "start":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.start(w, r)
	case "stop":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stop(w)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionHandler) status() sessionResponse {
	resp := sessionResponse{
		ID:    h.controller.SessionID(),
		State: h.controller.State(),
		Stats: h.controller.Stats(),
	}
	if err := h.controller.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

// start handles POST /api/session/start.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	err := h.controller.Start(r.Context())
	if err != nil {
		writeError(w, startStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// startStatus maps a start failure to an HTTP status.
func startStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotIdle), errors.Is(err, session.ErrStartCanceled):
		return http.StatusConflict
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// stop handles POST /api/session/stop.
func (h *SessionHandler) stop(w http.ResponseWriter) {
	if err := h.controller.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// HistoryHandler serves GET /api/sessions from the archive.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type listSessionsResponse struct {
	Sessions []*store.SessionRecord `json:"sessions"`
}

// ServeHTTP lists archived sessions, most recent first.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if records == nil {
		records = []*store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: records})
}
