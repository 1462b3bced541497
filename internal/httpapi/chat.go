package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/antoniostano/mrsmart/internal/chat"
)

// ChatService answers one text chat turn.
type ChatService interface {
	Send(ctx context.Context, req chat.Request) (chat.Reply, error)
}

const maxChatBody = 1 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"message\": string, \"history\": [...]}")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	start := time.Now()
	reply, err := s.chat.Send(r.Context(), req)
	s.metrics.ObserveStage("chat_turn", time.Since(start))
	if err != nil {
		if chat.IsInvalidRequest(err) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "chat_failed", chat.ErrorText)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}
