package voice

import (
	"context"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/tools"
)

type EventType string

const (
	EventOpen    EventType = "open"
	EventMessage EventType = "message"
	EventClose   EventType = "close"
	EventError   EventType = "error"
)

// ServerMessage is one decoded message from the model. Fields are applied in
// order: transcripts, audio, interruption, tool calls.
type ServerMessage struct {
	InputTranscript  string
	OutputTranscript string
	// Audio holds raw PCM16 LE chunks at audio.PlaybackSampleRate.
	Audio        [][]byte
	Interrupted  bool
	TurnComplete bool
	ToolCalls    []tools.Call
}

// Event is what a Transport emits. Exactly one of the payload fields is set
// depending on Type.
type Event struct {
	Type    EventType
	Message *ServerMessage
	// Code is an HTTP-style status for close and error events when known.
	Code   int
	Reason string
	Err    error
}

// Transport is a bidirectional realtime channel to the model. The event
// channel is closed after the final close or error event.
type Transport interface {
	Open(ctx context.Context) (<-chan Event, error)
	SendAudio(ctx context.Context, frame audio.Frame) error
	SendText(ctx context.Context, text string, turnComplete bool) error
	SendToolResult(ctx context.Context, res tools.Result) error
	Close() error
}

// TransportFactory returns a fresh, unopened transport for each session.
type TransportFactory func() Transport
