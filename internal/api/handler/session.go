package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/notafacil/nfse-agent/internal/api/response"
	"github.com/notafacil/nfse-agent/internal/domain"
)

// SessionHandler exposes durable session snapshots and emission records
// to the reporting console.
type SessionHandler struct {
	snapshots domain.SnapshotRepository
	emissions domain.EmissionRepository
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(snapshots domain.SnapshotRepository, emissions domain.EmissionRepository) *SessionHandler {
	return &SessionHandler{snapshots: snapshots, emissions: emissions}
}

// List returns session snapshots ordered by most recent activity
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	snaps, err := h.snapshots.List(r.Context(), limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list sessions")
		return
	}

	response.OK(w, map[string]any{
		"sessions": snaps,
		"limit":    limit,
		"offset":   offset,
	})
}

// Get returns one session snapshot
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snap, err := h.snapshots.GetBySessionID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, "failed to get session")
		return
	}

	response.OK(w, snap)
}

// Messages returns the conversation log of a session
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.snapshots.ListMessages(r.Context(), sessionID)
	if err != nil {
		response.InternalError(w, "failed to list messages")
		return
	}

	response.OK(w, map[string]any{
		"session_id": sessionID,
		"messages":   turns,
	})
}

// GetEmission returns one emission record by correlation id
func (h *SessionHandler) GetEmission(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")

	rec, err := h.emissions.GetByCorrelationID(r.Context(), correlationID)
	if err != nil {
		if errors.Is(err, domain.ErrEmissionNotFound) {
			response.NotFound(w, "emission not found")
			return
		}
		response.InternalError(w, "failed to get emission")
		return
	}

	response.OK(w, rec)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
