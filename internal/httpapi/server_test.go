package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/chat"
	"github.com/antoniostano/mrsmart/internal/config"
	"github.com/antoniostano/mrsmart/internal/observability"
	"github.com/antoniostano/mrsmart/internal/phone"
	"github.com/antoniostano/mrsmart/internal/recordings"
	"github.com/antoniostano/mrsmart/internal/session"
	"github.com/antoniostano/mrsmart/internal/tools"
	"github.com/antoniostano/mrsmart/internal/voice"
	"github.com/antoniostano/mrsmart/internal/workspace"
)

type testEnv struct {
	server    *httptest.Server
	engine    *voice.Engine
	transport *voice.MockTransport
	store     *recordings.InMemoryStore
	phone     *phone.SettingsStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		transport: voice.NewMockTransport(),
		store:     recordings.NewInMemoryStore(),
		phone:     phone.NewSettingsStore(phone.Settings{APIKey: "secret-key-1234", AgentID: "agent"}),
	}
	sessions := session.NewManager(time.Hour)
	metrics := observability.NewMetrics("test_httpapi")
	eng, err := voice.NewEngine(voice.Options{
		Transports:       func() voice.Transport { return env.transport },
		Sink:             env.store,
		Sessions:         sessions,
		Metrics:          metrics,
		GreetingDelay:    time.Millisecond,
		InactivityPeriod: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	env.engine = eng

	ws := workspace.NewStoreFromFixtures(workspace.DefaultFixtures(time.Now()))
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.BuiltinDeps{Workspace: ws, PhoneSettings: env.phone}); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	cfg := config.Config{TransportMode: "mock", SummaryMode: "mock"}
	srv := New(cfg, Deps{
		Engine:     eng,
		Sessions:   sessions,
		Recordings: env.store,
		Phone:      env.phone,
		Workspace:  ws,
		Metrics:    metrics,
		Chat:       chat.NewService(chat.NewMock("Mr. Smart"), registry),
	})
	env.server = httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		env.server.Close()
		eng.Disconnect()
		eng.Wait()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	return res, data
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/perf/latency"} {
		res, body := env.do(t, http.MethodGet, path, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d body=%s", path, res.StatusCode, body)
		}
	}
	if res, body := env.do(t, http.MethodDelete, "/v1/perf/latency", nil); res.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE /v1/perf/latency status = %d body=%s", res.StatusCode, body)
	}
	res, body := env.do(t, http.MethodGet, "/metrics", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "test_httpapi_active_sessions") {
		t.Fatalf("GET /metrics status=%d missing active sessions gauge", res.StatusCode)
	}
}

func TestSessionEndpointsWithoutLiveSession(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.do(t, http.MethodGet, "/v1/voice/session", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET session status = %d", res.StatusCode)
	}
	var snap voice.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != session.StateIdle || snap.Status != voice.StatusReady {
		t.Fatalf("snapshot = %+v", snap)
	}

	res, _ = env.do(t, http.MethodPost, "/v1/voice/session/mute", map[string]bool{"muted": true})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("mute without session status = %d, want 409", res.StatusCode)
	}
	res, _ = env.do(t, http.MethodPost, "/v1/voice/session/mute", map[string]string{"muted": "yes"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad mute body status = %d, want 400", res.StatusCode)
	}
	res, _ = env.do(t, http.MethodPost, "/v1/voice/session/disconnect", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("disconnect without session status = %d", res.StatusCode)
	}
}

func TestPhoneSettingsMaskAndMerge(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.do(t, http.MethodGet, "/v1/settings/phone", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", res.StatusCode)
	}
	var got map[string]any
	_ = json.Unmarshal(body, &got)
	if got["api_key"] != "***********1234" || got["configured"] != false {
		t.Fatalf("GET settings = %v", got)
	}

	res, _ = env.do(t, http.MethodPut, "/v1/settings/phone", map[string]string{"from_number": "Alex"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid from number status = %d, want 400", res.StatusCode)
	}

	res, body = env.do(t, http.MethodPut, "/v1/settings/phone", map[string]string{
		"api_key":     "***********1234",
		"from_number": "+15550001111",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d body=%s", res.StatusCode, body)
	}
	_ = json.Unmarshal(body, &got)
	if got["configured"] != true {
		t.Fatalf("PUT settings = %v", got)
	}
	if env.phone.Get().APIKey != "secret-key-1234" {
		t.Fatalf("masked key overwrote stored key")
	}
}

func TestRecordingsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	wav, _ := audio.EncodeWAVPCM16LE(make([]byte, 4800), audio.PlaybackSampleRate)
	_ = env.store.Save(context.Background(), recordings.Recording{
		ID:         "rec-1",
		Duration:   2 * time.Second,
		Transcript: "User: hi\n",
		Summary:    "Short.",
		MIMEType:   "audio/wav",
		Audio:      wav,
	})

	res, body := env.do(t, http.MethodGet, "/v1/recordings", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"id":"rec-1"`) {
		t.Fatalf("list status=%d body=%s", res.StatusCode, body)
	}
	if strings.Contains(string(body), "UklG") {
		t.Fatalf("list leaked audio payload")
	}

	res, body = env.do(t, http.MethodGet, "/v1/recordings/rec-1", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"duration_ms":2000`) {
		t.Fatalf("get status=%d body=%s", res.StatusCode, body)
	}

	res, body = env.do(t, http.MethodGet, "/v1/recordings/rec-1/audio", nil)
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "audio/wav" || !bytes.Equal(body, wav) {
		t.Fatalf("audio status=%d type=%q len=%d", res.StatusCode, res.Header.Get("Content-Type"), len(body))
	}

	res, _ = env.do(t, http.MethodGet, "/v1/recordings/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", res.StatusCode)
	}
	res, _ = env.do(t, http.MethodGet, "/v1/recordings?limit=zero", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", res.StatusCode)
	}
}

func TestWorkspaceEndpoints(t *testing.T) {
	env := newTestEnv(t)
	res, body := env.do(t, http.MethodGet, "/v1/workspace/emails", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "emails") {
		t.Fatalf("emails status=%d body=%s", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodGet, "/v1/workspace/events", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "Team Standup") {
		t.Fatalf("events status=%d body=%s", res.StatusCode, body)
	}
}

func dialSession(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/voice/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func isStatus(status string) func(map[string]any) bool {
	return func(m map[string]any) bool {
		return m["type"] == "status_event" && m["status"] == status
	}
}

func TestSessionWebsocketRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env)

	readUntil(t, conn, "listening", isStatus(voice.StatusListening))

	pcm := audio.EncodePCM16(make([]float32, 1600))
	chunk := map[string]any{
		"type":         "client_audio_chunk",
		"seq":          1,
		"pcm16_base64": b64(pcm),
		"sample_rate":  16000,
	}
	if err := conn.WriteJSON(chunk); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	waitFor(t, "audio at transport", func() bool { return len(env.transport.SentAudio()) == 1 })

	reply := audio.EncodePCM16(make([]float32, 2400))
	env.transport.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.ServerMessage{
		OutputTranscript: "Mr. Smart here.",
		Audio:            [][]byte{reply},
	}})
	var sawTranscript bool
	var first map[string]any
	readUntil(t, conn, "transcript and audio", func(m map[string]any) bool {
		switch m["type"] {
		case "transcript_delta":
			if m["speaker"] == "assistant" && m["text"] == "Mr. Smart here." {
				sawTranscript = true
			}
		case "assistant_audio_chunk":
			if first == nil {
				first = m
			}
		}
		return sawTranscript && first != nil
	})
	if first["duration_ms"] != float64(100) || first["format"] != "pcm_s16le" {
		t.Fatalf("audio chunk = %v", first)
	}

	env.transport.Emit(voice.Event{Type: voice.EventMessage, Message: &voice.ServerMessage{Interrupted: true}})
	readUntil(t, conn, "flush", func(m map[string]any) bool { return m["type"] == "playback_flush" })

	if err := conn.WriteJSON(map[string]any{"type": "client_control", "action": "bogus"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	readUntil(t, conn, "error event", func(m map[string]any) bool {
		return m["type"] == "error_event" && m["code"] == "invalid_client_message"
	})

	if err := conn.WriteJSON(map[string]any{"type": "client_control", "action": "disconnect"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	readUntil(t, conn, "disconnected", isStatus(voice.StatusDisconnected))

	env.engine.Wait()
	list, _ := env.store.List(context.Background(), 0)
	if len(list) != 1 {
		t.Fatalf("recordings = %d, want 1", len(list))
	}
	if list[0].Transcript != "Mr. Smart: Mr. Smart here.\n" {
		t.Fatalf("transcript = %q", list[0].Transcript)
	}
}

func TestSessionWebsocketCloseEndsSession(t *testing.T) {
	env := newTestEnv(t)
	conn := dialSession(t, env)
	readUntil(t, conn, "listening", isStatus(voice.StatusListening))

	conn.Close()
	waitFor(t, "session closed", func() bool {
		snap := env.engine.Snapshot()
		return snap.State == session.StateIdle && snap.Session != nil && snap.Session.State == session.StateClosed
	})
	if !env.transport.Closed() {
		waitFor(t, "transport closed", env.transport.Closed)
	}
}

func TestSessionWebsocketConnectFailure(t *testing.T) {
	env := newTestEnv(t)
	env.transport.OpenErr = io.ErrUnexpectedEOF
	conn := dialSession(t, env)

	msg := readUntil(t, conn, "failure status", func(m map[string]any) bool { return m["type"] == "status_event" })
	if msg["status"] != "Failed to access microphone or API" {
		t.Fatalf("status = %v", msg["status"])
	}
	readUntil(t, conn, "error event", func(m map[string]any) bool { return m["code"] == "connect_failed" })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
