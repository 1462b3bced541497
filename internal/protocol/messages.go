package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/mrsmart/internal/audio"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeAssistantAudio   MessageType = "assistant_audio_chunk"
	TypePlaybackFlush    MessageType = "playback_flush"
	TypeTranscriptDelta  MessageType = "transcript_delta"
	TypeStatusEvent      MessageType = "status_event"
	TypeToolEvent        MessageType = "tool_event"
	TypeErrorEvent       MessageType = "error_event"
)

const (
	ActionMute       = "mute"
	ActionUnmute     = "unmute"
	ActionDisconnect = "disconnect"
)

// AudioFormat is the only wire encoding for audio in either direction.
const AudioFormat = "pcm_s16le"

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id,omitempty"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	StartMS     int64       `json:"start_ms"`
	DurationMS  int64       `json:"duration_ms"`
	SampleRate  int         `json:"sample_rate"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

// PlaybackFlush tells the client to stop everything scheduled at or after AtMS.
type PlaybackFlush struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	AtMS      int64       `json:"at_ms"`
}

type TranscriptDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Speaker   string      `json:"speaker"`
	Text      string      `json:"text"`
}

type StatusEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	State     string      `json:"state"`
	Status    string      `json:"status"`
}

type ToolEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	CallID    string      `json:"call_id"`
	Name      string      `json:"name"`
	Phase     string      `json:"phase"`
	Status    string      `json:"status,omitempty"`
	Message   string      `json:"message,omitempty"`
	Risk      string      `json:"risk,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" {
			return nil, errors.New("invalid client_audio_chunk: empty payload")
		}
		if msg.SampleRate < audio.MinSampleRate || msg.SampleRate > audio.MaxSampleRate {
			return nil, fmt.Errorf("invalid client_audio_chunk: sample_rate %d outside [%d,%d]", msg.SampleRate, audio.MinSampleRate, audio.MaxSampleRate)
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		switch msg.Action {
		case ActionMute, ActionUnmute, ActionDisconnect:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
