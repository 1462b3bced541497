package httpapi

import "net/http"

func (s *Server) handleListEmails(w http.ResponseWriter, _ *http.Request) {
	if s.workspace == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "workspace not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"emails": s.workspace.Emails()})
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	if s.workspace == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "workspace not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": s.workspace.Events()})
}
