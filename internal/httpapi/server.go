package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/mrsmart/internal/config"
	"github.com/antoniostano/mrsmart/internal/observability"
	"github.com/antoniostano/mrsmart/internal/phone"
	"github.com/antoniostano/mrsmart/internal/recordings"
	"github.com/antoniostano/mrsmart/internal/session"
	"github.com/antoniostano/mrsmart/internal/voice"
	"github.com/antoniostano/mrsmart/internal/workspace"
)

// VoiceEngine is the session engine driven by the websocket bridge.
type VoiceEngine interface {
	Connect(ctx context.Context, dev voice.CaptureDevice, sinks ...voice.PlaybackSink) (session.Snapshot, error)
	Disconnect()
	DisconnectSession(sessionID string) bool
	SetMuted(muted bool) error
	Snapshot() voice.Snapshot
	Subscribe() (<-chan voice.Update, func())
}

type Deps struct {
	Engine     VoiceEngine
	Sessions   *session.Manager
	Recordings recordings.Store
	Phone      *phone.SettingsStore
	Workspace  *workspace.Store
	Metrics    *observability.Metrics
	Chat       ChatService
}

type Server struct {
	cfg        config.Config
	engine     VoiceEngine
	sessions   *session.Manager
	recordings recordings.Store
	phone      *phone.SettingsStore
	workspace  *workspace.Store
	metrics    *observability.Metrics
	chat       ChatService
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:        cfg,
		engine:     deps.Engine,
		sessions:   deps.Sessions,
		recordings: deps.Recordings,
		phone:      deps.Phone,
		workspace:  deps.Workspace,
		metrics:    deps.Metrics,
		chat:       deps.Chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handleResetPerfLatency)

	r.Get("/v1/voice/session", s.handleGetSession)
	r.Get("/v1/voice/sessions", s.handleListSessions)
	r.Post("/v1/voice/session/disconnect", s.handleDisconnect)
	r.Post("/v1/voice/session/mute", s.handleMute)
	r.Get("/v1/voice/session/ws", s.handleSessionWS)

	r.Get("/v1/recordings", s.handleListRecordings)
	r.Get("/v1/recordings/{id}", s.handleGetRecording)
	r.Get("/v1/recordings/{id}/audio", s.handleRecordingAudio)

	r.Get("/v1/settings/phone", s.handleGetPhoneSettings)
	r.Put("/v1/settings/phone", s.handlePutPhoneSettings)

	r.Get("/v1/workspace/emails", s.handleListEmails)
	r.Get("/v1/workspace/events", s.handleListEvents)

	r.Post("/v1/chat", s.handleChat)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"transport_mode": s.cfg.TransportMode,
		"summary_mode":   s.cfg.SummaryMode,
		"chat_mode":      s.cfg.ChatMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil || s.recordings == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "voice engine or recording store not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"recording_store": recordingStoreMode(s.recordings),
		"phone_ready":     s.phone != nil && s.phone.Get().Configured(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice engine not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil {
		respondJSON(w, http.StatusOK, map[string]any{"sessions": []session.Snapshot{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.Recent()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice engine not configured")
		return
	}
	s.engine.Disconnect()
	respondJSON(w, http.StatusOK, s.engine.Snapshot())
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice engine not configured")
		return
	}
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil || req.Muted == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"muted\": bool}")
		return
	}
	if err := s.engine.SetMuted(*req.Muted); err != nil {
		if errors.Is(err, voice.ErrNoSession) {
			respondError(w, http.StatusConflict, "no_session", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "mute_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleResetPerfLatency(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetStages()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
