package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/mrsmart/internal/recordings"
)

const defaultRecordingsLimit = 50

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.recordings == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "recording store not configured")
		return
	}
	limit := defaultRecordingsLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.recordings.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if items == nil {
		items = []recordings.Recording{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"recordings": items})
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecording(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rec.Metadata())
}

func (s *Server) handleRecordingAudio(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecording(w, r)
	if !ok {
		return
	}
	mime := rec.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Audio)))
	w.Header().Set("Content-Disposition", `inline; filename="`+rec.ID+`.wav"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Audio)
}

func (s *Server) lookupRecording(w http.ResponseWriter, r *http.Request) (recordings.Recording, bool) {
	if s.recordings == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "recording store not configured")
		return recordings.Recording{}, false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_recording_id", "missing recording id")
		return recordings.Recording{}, false
	}
	rec, err := s.recordings.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			respondError(w, http.StatusNotFound, "recording_not_found", err.Error())
			return recordings.Recording{}, false
		}
		respondError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return recordings.Recording{}, false
	}
	return rec, true
}

func recordingStoreMode(store recordings.Store) string {
	switch store.(type) {
	case *recordings.PostgresStore:
		return "postgres"
	case *recordings.InMemoryStore:
		return "in-memory"
	default:
		return "custom"
	}
}
