package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/facewatch/internal/snapshot"
	"github.com/ayusman/facewatch/internal/store"
)

// SnapshotHandler handles HTTP requests for snapshot resources.
type SnapshotHandler struct {
	snapshots *snapshot.Store
	archive   *store.Store
}

// NewSnapshotHandler creates a new SnapshotHandler. archive may be nil; when
// set, snapshots evicted from memory are still served from it.
func NewSnapshotHandler(snapshots *snapshot.Store, archive *store.Store) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, archive: archive}
}

type snapshotResponse struct {
	ID         string `json:"id"`
	Index      int    `json:"index"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	Size       int    `json:"size,omitempty"`
	CapturedAt string `json:"captured_at"`
}

type listSnapshotsResponse struct {
	Snapshots []snapshotResponse `json:"snapshots"`
}

func toSnapshotResponse(s snapshot.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:         s.ID,
		Index:      s.Index,
		Width:      s.Width,
		Height:     s.Height,
		Format:     string(s.Format),
		Size:       len(s.Image),
		CapturedAt: s.CapturedAt.Format(time.RFC3339Nano),
	}
}

// ServeHTTP routes /api/snapshots and /api/snapshots/{id}.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/snapshots")
	id = strings.TrimPrefix(id, "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.capture(w)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.image(w, id)
}

// list handles GET /api/snapshots. With ?source=archive the archived
// snapshots are listed instead of the in-memory ones.
func (h *SnapshotHandler) list(w http.ResponseWriter, r *http.Request) {
	var snaps []snapshot.Snapshot

	if r.URL.Query().Get("source") == "archive" {
		if h.archive == nil {
			writeError(w, http.StatusNotFound, "no archive configured")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		archived, err := h.archive.Snapshots().List(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list snapshots")
			return
		}
		snaps = archived
	} else {
		snaps = h.snapshots.List()
	}

	resp := listSnapshotsResponse{Snapshots: make([]snapshotResponse, 0, len(snaps))}
	for _, s := range snaps {
		resp.Snapshots = append(resp.Snapshots, toSnapshotResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// capture handles POST /api/snapshots.
func (h *SnapshotHandler) capture(w http.ResponseWriter) {
	snap, err := h.snapshots.Capture()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoStream) {
			writeError(w, http.StatusConflict, "no camera stream; start a session first")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotResponse(snap))
}

// image handles GET /api/snapshots/{id}.
func (h *SnapshotHandler) image(w http.ResponseWriter, id string) {
	snap, err := h.snapshots.Get(id)
	if errors.Is(err, snapshot.ErrNotFound) && h.archive != nil {
		snap, err = h.archive.Snapshots().Get(id)
	}
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	w.Header().Set("Content-Type", snap.Format.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Image)))
	w.WriteHeader(http.StatusOK)
	w.Write(snap.Image)
}
