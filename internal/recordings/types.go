package recordings

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("recording not found")

// Recording is one finished conversation.
type Recording struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Transcript string        `json:"transcript"`
	Summary    string        `json:"summary"`
	MIMEType   string        `json:"mime_type"`
	Audio      []byte        `json:"-"`
	AudioBytes int           `json:"audio_bytes"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Metadata returns the recording without its audio payload.
func (r Recording) Metadata() Recording {
	r.DurationMS = r.Duration.Milliseconds()
	r.AudioBytes = len(r.Audio)
	r.Audio = nil
	return r
}

// Store persists recordings. Save is the sink the voice engine writes to.
type Store interface {
	Save(ctx context.Context, rec Recording) error
	List(ctx context.Context, limit int) ([]Recording, error)
	Get(ctx context.Context, id string) (Recording, error)
	Close() error
}
