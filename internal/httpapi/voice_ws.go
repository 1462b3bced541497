package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/observability"
	"github.com/antoniostano/mrsmart/internal/protocol"
	"github.com/antoniostano/mrsmart/internal/reliability"
	"github.com/antoniostano/mrsmart/internal/session"
	"github.com/antoniostano/mrsmart/internal/voice"
)

const (
	wsOutboundBuffer = 512
	wsCaptureBuffer  = 32
	wsReadTimeout    = 120 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice engine not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := &outbox{ch: make(chan any, wsOutboundBuffer), metrics: s.metrics}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-out.ch:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.TransportMessage("out", "write_error")
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.TransportMessage("out", string(t))
				}
			}
		}
	}()

	updates, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	device := voice.NewChannelDevice(wsCaptureBuffer)
	sink := &socketSink{out: out}
	snap, err := s.engine.Connect(ctx, device, sink)
	if err != nil {
		var ce *voice.ConnectionError
		detail, status := err.Error(), ""
		if errors.As(err, &ce) {
			status = ce.Status
		}
		out.send(protocol.StatusEvent{Type: protocol.TypeStatusEvent, State: string(session.StateClosed), Status: status})
		out.send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "connect_failed", Source: "engine", Retryable: reliability.IsRetryableConnectionFailure(detail), Detail: detail})
		cancel()
		<-writerDone
		out.drainTo(conn)
		return
	}
	sessionID := snap.ID
	sink.setSession(sessionID)

	go forwardUpdates(ctx, sessionID, updates, out)

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			out.send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		switch msg := parsed.(type) {
		case protocol.ClientAudioChunk:
			s.metrics.TransportMessage("in", string(msg.Type))
			frame, err := decodeClientAudio(msg)
			if err != nil {
				s.metrics.CodecError("client")
				out.send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      "invalid_audio",
					Source:    "gateway",
					Detail:    err.Error(),
				})
				continue
			}
			if !device.Push(frame) {
				s.metrics.CaptureDropped()
			}
		case protocol.ClientControl:
			s.metrics.TransportMessage("in", string(msg.Type))
			s.handleControl(sessionID, msg, out)
		}
	}

	if s.engine.DisconnectSession(sessionID) {
		log.Printf("httpapi: session ended by socket close session_id=%s", sessionID)
	}
	cancel()
	<-writerDone
	s.metrics.SessionEvent("ws_disconnected")
}

func (s *Server) handleControl(sessionID string, msg protocol.ClientControl, out *outbox) {
	switch msg.Action {
	case protocol.ActionMute, protocol.ActionUnmute:
		if err := s.engine.SetMuted(msg.Action == protocol.ActionMute); err != nil {
			out.send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "no_session",
				Source:    "engine",
				Detail:    err.Error(),
			})
		}
	case protocol.ActionDisconnect:
		s.engine.DisconnectSession(sessionID)
	}
}

func decodeClientAudio(msg protocol.ClientAudioChunk) (audio.Frame, error) {
	frame, err := audio.DecodeBase64(msg.PCM16Base64, msg.SampleRate, 1)
	if err != nil {
		return audio.Frame{}, err
	}
	if frame.SampleRate != audio.CaptureSampleRate {
		frame.Samples = audio.Resample(frame.Samples, frame.SampleRate, audio.CaptureSampleRate)
		frame.SampleRate = audio.CaptureSampleRate
	}
	return frame, nil
}

func forwardUpdates(ctx context.Context, sessionID string, updates <-chan voice.Update, out *outbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.SessionID != sessionID {
				continue
			}
			switch u.Kind {
			case voice.UpdateStatus:
				out.send(protocol.StatusEvent{
					Type:      protocol.TypeStatusEvent,
					SessionID: u.SessionID,
					State:     string(u.State),
					Status:    u.Status,
				})
			case voice.UpdateTranscript:
				out.send(protocol.TranscriptDelta{
					Type:      protocol.TypeTranscriptDelta,
					SessionID: u.SessionID,
					Speaker:   string(u.Speaker),
					Text:      u.Text,
				})
			case voice.UpdateTool:
				if u.Tool == nil {
					continue
				}
				out.send(protocol.ToolEvent{
					Type:      protocol.TypeToolEvent,
					SessionID: u.SessionID,
					CallID:    u.Tool.ID,
					Name:      u.Tool.Name,
					Phase:     u.Tool.Phase,
					Status:    string(u.Tool.Status),
					Message:   u.Tool.Message,
					Risk:      string(u.Tool.Risk),
				})
			}
		}
	}
}

// outbox queues messages for the single websocket writer. It never blocks.
type outbox struct {
	ch      chan any
	metrics *observability.Metrics
}

func (o *outbox) send(msg any) bool {
	select {
	case o.ch <- msg:
		return true
	default:
		if t, ok := messageTypeOf(msg); ok {
			o.metrics.TransportMessage("out", string(t)+"_dropped")
		}
		return false
	}
}

// drainTo writes whatever is still queued. Only call once the writer has
// exited.
func (o *outbox) drainTo(conn *websocket.Conn) {
	for {
		select {
		case msg := <-o.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// socketSink streams scheduled reply audio to the browser, which plays each
// chunk at its start offset.
type socketSink struct {
	out *outbox

	mu        sync.Mutex
	sessionID string
	seq       int
}

func (s *socketSink) setSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

func (s *socketSink) Play(sf voice.ScheduledFrame) {
	s.mu.Lock()
	s.seq++
	msg := protocol.AssistantAudioChunk{
		Type:        protocol.TypeAssistantAudio,
		SessionID:   s.sessionID,
		Seq:         s.seq,
		StartMS:     sf.Start.Milliseconds(),
		DurationMS:  (sf.End - sf.Start).Milliseconds(),
		SampleRate:  sf.Frame.SampleRate,
		Format:      protocol.AudioFormat,
		AudioBase64: audio.EncodeBase64(sf.Frame),
	}
	s.mu.Unlock()
	s.out.send(msg)
}

func (s *socketSink) Flush(at time.Duration) {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()
	s.out.send(protocol.PlaybackFlush{Type: protocol.TypePlaybackFlush, SessionID: id, AtMS: at.Milliseconds()})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.PlaybackFlush:
		return m.Type, true
	case protocol.TranscriptDelta:
		return m.Type, true
	case protocol.StatusEvent:
		return m.Type, true
	case protocol.ToolEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
