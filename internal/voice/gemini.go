package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/reliability"
	"github.com/antoniostano/mrsmart/internal/tools"
)

const (
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoiceName = "Puck"
)

type GeminiConfig struct {
	APIKey            string
	Model             string
	VoiceName         string
	SystemInstruction string
	Declarations      []tools.Declaration
	GoogleSearch      bool
	GoogleMaps        bool
}

// GeminiTransport speaks the Gemini Live API.
type GeminiTransport struct {
	cfg GeminiConfig

	sendMu  sync.Mutex
	mu      sync.Mutex
	session *genai.Session
	closed  bool
	done    chan struct{}
}

func NewGeminiTransportFactory(cfg GeminiConfig) TransportFactory {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultLiveModel
	}
	if strings.TrimSpace(cfg.VoiceName) == "" {
		cfg.VoiceName = DefaultVoiceName
	}
	if strings.TrimSpace(cfg.SystemInstruction) == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	return func() Transport {
		return &GeminiTransport{cfg: cfg, done: make(chan struct{})}
	}
}

func (t *GeminiTransport) Open(ctx context.Context) (<-chan Event, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  t.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	session, err := client.Live.Connect(ctx, t.cfg.Model, t.connectConfig())
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = session.Close()
		return nil, ErrTransportClosed
	}
	t.session = session
	t.mu.Unlock()

	events := make(chan Event, 256)
	go t.readLoop(session, events)
	return events, nil
}

func (t *GeminiTransport) connectConfig() *genai.LiveConnectConfig {
	tool := &genai.Tool{FunctionDeclarations: tools.GenAIDeclarations(t.cfg.Declarations)}
	toolset := []*genai.Tool{tool}
	if t.cfg.GoogleSearch {
		toolset = append(toolset, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if t.cfg.GoogleMaps {
		toolset = append(toolset, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
	}
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: t.cfg.VoiceName},
			},
		},
		SystemInstruction:        genai.NewContentFromText(t.cfg.SystemInstruction, genai.RoleUser),
		Tools:                    toolset,
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
}

func (t *GeminiTransport) readLoop(session *genai.Session, events chan<- Event) {
	defer close(events)
	for {
		msg, err := session.Receive()
		if err != nil {
			if !t.isClosed() {
				t.emit(events, closeEvent(err))
			}
			return
		}
		if msg.SetupComplete != nil && !t.emit(events, Event{Type: EventOpen}) {
			return
		}
		if sm := serverMessage(msg); sm != nil && !t.emit(events, Event{Type: EventMessage, Message: sm}) {
			return
		}
		if msg.GoAway != nil {
			log.Printf("voice: gemini go-away time_left=%v", msg.GoAway.TimeLeft)
		}
	}
}

// emit delivers ev unless the transport is closed first.
func (t *GeminiTransport) emit(events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-t.done:
		return false
	}
}

func closeEvent(err error) Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure {
			return Event{Type: EventClose, Reason: ce.Text}
		}
		return Event{Type: EventError, Code: reliability.StatusCodeFromText(ce.Text), Reason: ce.Text, Err: err}
	}
	return Event{Type: EventError, Code: reliability.StatusCodeFromText(err.Error()), Err: err}
}

func serverMessage(msg *genai.LiveServerMessage) *ServerMessage {
	var out ServerMessage
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				out.Audio = append(out.Audio, part.InlineData.Data)
			}
		}
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, tools.CallFromGenAI(fc))
		}
	}
	if out.InputTranscript == "" && out.OutputTranscript == "" && len(out.Audio) == 0 &&
		!out.Interrupted && !out.TurnComplete && len(out.ToolCalls) == 0 {
		return nil
	}
	return &out
}

func (t *GeminiTransport) SendAudio(_ context.Context, f audio.Frame) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return s.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{
			Data:     audio.EncodePCM16(f.Samples),
			MIMEType: audio.MIMEType(f.SampleRate),
		},
	})
}

func (t *GeminiTransport) SendText(_ context.Context, text string, turnComplete bool) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return s.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(turnComplete),
	})
}

func (t *GeminiTransport) SendToolResult(_ context.Context, res tools.Result) error {
	s, err := t.live()
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return s.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       res.ID,
			Name:     res.Name,
			Response: res.Payload(),
		}},
	})
}

func (t *GeminiTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

func (t *GeminiTransport) live() (*genai.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.session == nil {
		return nil, ErrTransportClosed
	}
	return t.session, nil
}

func (t *GeminiTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
