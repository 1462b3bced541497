package voice

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/tools"
)

var ErrTransportClosed = errors.New("transport closed")

type SentText struct {
	Text         string
	TurnComplete bool
}

// MockTransport is an in-process Transport used in tests and when no model
// credentials are configured. It records everything sent to it.
type MockTransport struct {
	mu      sync.Mutex
	events  chan Event
	opened  bool
	closed  bool
	audio   []audio.Frame
	texts   []SentText
	results []tools.Result
	sent    chan struct{}

	// AutoOpen emits EventOpen as soon as Open succeeds.
	AutoOpen bool
	OpenErr  error
	SendErr  error
	// Respond, when set, is asked for a reply to each text directive.
	Respond func(text string) *ServerMessage
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		events:   make(chan Event, 256),
		sent:     make(chan struct{}, 1),
		AutoOpen: true,
	}
}

// NewDemoTransportFactory returns mock transports that answer every
// directive with a short spoken acknowledgement, for running without a model.
func NewDemoTransportFactory(assistantName string) TransportFactory {
	return func() Transport {
		t := NewMockTransport()
		t.Respond = func(text string) *ServerMessage {
			return &ServerMessage{
				OutputTranscript: assistantName + " here. Ready to work.",
				Audio:            [][]byte{audio.EncodePCM16(tone(440, 400, audio.PlaybackSampleRate))},
				TurnComplete:     true,
			}
		}
		return t
	}
}

func (t *MockTransport) Open(context.Context) (<-chan Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	if t.closed {
		return nil, ErrTransportClosed
	}
	t.opened = true
	if t.AutoOpen {
		t.events <- Event{Type: EventOpen}
	}
	return t.events, nil
}

// Emit injects an event. It reports false once the transport is closed or
// the buffer is full.
func (t *MockTransport) Emit(ev Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	select {
	case t.events <- ev:
		return true
	default:
		return false
	}
}

func (t *MockTransport) SendAudio(_ context.Context, f audio.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sendErrLocked(); err != nil {
		return err
	}
	t.audio = append(t.audio, f)
	t.notifyLocked()
	return nil
}

func (t *MockTransport) SendText(_ context.Context, text string, turnComplete bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sendErrLocked(); err != nil {
		return err
	}
	t.texts = append(t.texts, SentText{Text: text, TurnComplete: turnComplete})
	t.notifyLocked()
	if t.Respond != nil {
		if msg := t.Respond(text); msg != nil {
			select {
			case t.events <- Event{Type: EventMessage, Message: msg}:
			default:
			}
		}
	}
	return nil
}

func (t *MockTransport) SendToolResult(_ context.Context, res tools.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sendErrLocked(); err != nil {
		return err
	}
	t.results = append(t.results, res)
	t.notifyLocked()
	return nil
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.events)
	return nil
}

func (t *MockTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *MockTransport) SentAudio() []audio.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]audio.Frame(nil), t.audio...)
}

func (t *MockTransport) SentTexts() []SentText {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentText(nil), t.texts...)
}

func (t *MockTransport) SentResults() []tools.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tools.Result(nil), t.results...)
}

// Sent is signalled after anything is sent. Coalesced.
func (t *MockTransport) Sent() <-chan struct{} {
	return t.sent
}

func (t *MockTransport) sendErrLocked() error {
	if t.closed {
		return ErrTransportClosed
	}
	if !t.opened {
		return errors.New("transport not open")
	}
	return t.SendErr
}

func (t *MockTransport) notifyLocked() {
	select {
	case t.sent <- struct{}{}:
	default:
	}
}

func tone(freq float64, ms, sampleRate int) []float32 {
	n := sampleRate * ms / 1000
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
