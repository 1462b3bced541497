package voice

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/recordings"
)

const (
	SummaryFailedPlaceholder = "Failed to generate summary."
	SummaryEmptyPlaceholder  = "No conversation detected."

	DefaultFinalizeSettle = 500 * time.Millisecond
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type TranscriptLine struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// Summarizer condenses a transcript. Implementations may be slow or fail.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// RecordingSink receives the finished recording.
type RecordingSink interface {
	Save(ctx context.Context, rec recordings.Recording) error
}

// ErrNoAudio is returned by Finalize when nothing was captured or played.
var ErrNoAudio = errors.New("no audio recorded")

// Recorder accumulates the transcript and the mixed conversation audio for a
// session, and produces exactly one Recording when finalized.
type Recorder struct {
	sessionID     string
	assistantName string
	start         time.Time
	now           func() time.Time
	settle        time.Duration
	summarizer    Summarizer
	sink          RecordingSink

	mu       sync.Mutex
	lines    []TranscriptLine
	text     strings.Builder
	mixer    *audio.Mixer
	stopped  bool
	once     sync.Once
	result   recordings.Recording
	finalErr error
}

type RecorderOptions struct {
	SessionID     string
	AssistantName string
	Start         time.Time
	Now           func() time.Time
	Settle        time.Duration
	Limit         time.Duration
	Summarizer    Summarizer
	Sink          RecordingSink
}

func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Start.IsZero() {
		opts.Start = opts.Now()
	}
	if strings.TrimSpace(opts.AssistantName) == "" {
		opts.AssistantName = DefaultAssistantName
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	return &Recorder{
		sessionID:     opts.SessionID,
		assistantName: opts.AssistantName,
		start:         opts.Start,
		now:           opts.Now,
		settle:        opts.Settle,
		summarizer:    opts.Summarizer,
		sink:          opts.Sink,
		mixer:         audio.NewMixer(audio.PlaybackSampleRate, opts.Limit),
	}
}

// Append adds a transcription fragment in arrival order.
func (r *Recorder) Append(speaker Speaker, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.lines = append(r.lines, TranscriptLine{Speaker: speaker, Text: text, At: r.now()})
	label := "User"
	if speaker == SpeakerAssistant {
		label = r.assistantName
	}
	r.text.WriteString(label)
	r.text.WriteString(": ")
	r.text.WriteString(text)
	r.text.WriteString("\n")
}

func (r *Recorder) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}

func (r *Recorder) Lines() []TranscriptLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TranscriptLine(nil), r.lines...)
}

// AddInput mixes a captured microphone frame at the current session offset.
func (r *Recorder) AddInput(f audio.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.mixer.Add(audio.TrackInput, r.now().Sub(r.start), f)
}

// Play implements PlaybackSink.
func (r *Recorder) Play(sf ScheduledFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.mixer.Add(audio.TrackOutput, sf.Start, sf.Frame)
}

// Flush implements PlaybackSink: reply audio that never played is cut.
func (r *Recorder) Flush(at time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.mixer.Truncate(audio.TrackOutput, at)
}

// Finalize stops recording and saves the result once. Later calls return the
// first call's outcome.
func (r *Recorder) Finalize(ctx context.Context) (recordings.Recording, error) {
	r.once.Do(func() {
		r.result, r.finalErr = r.finalize(ctx)
	})
	return r.result, r.finalErr
}

func (r *Recorder) finalize(ctx context.Context) (recordings.Recording, error) {
	r.mu.Lock()
	r.stopped = true
	end := r.now()
	empty := r.mixer.Empty()
	transcript := r.text.String()
	r.mu.Unlock()

	if empty {
		return recordings.Recording{}, ErrNoAudio
	}

	if r.settle > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(r.settle):
		}
	}

	if r.mixer.Clipped() {
		log.Printf("voice: recording reached its length limit session_id=%s", r.sessionID)
	}
	r.mu.Lock()
	wav, err := r.mixer.WAV()
	r.mu.Unlock()
	if err != nil {
		return recordings.Recording{}, err
	}

	rec := recordings.Recording{
		ID:         uuid.NewString(),
		SessionID:  r.sessionID,
		StartedAt:  r.start.UTC(),
		Duration:   end.Sub(r.start),
		Transcript: transcript,
		Summary:    r.summarize(ctx, transcript),
		MIMEType:   "audio/wav",
		Audio:      wav,
		CreatedAt:  end.UTC(),
	}
	if r.sink != nil {
		if err := r.sink.Save(ctx, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func (r *Recorder) summarize(ctx context.Context, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return SummaryEmptyPlaceholder
	}
	if r.summarizer == nil {
		return SummaryFailedPlaceholder
	}
	summary, err := r.summarizer.Summarize(ctx, transcript)
	if err != nil || strings.TrimSpace(summary) == "" {
		log.Printf("voice: summary failed session_id=%s: %v", r.sessionID, err)
		return SummaryFailedPlaceholder
	}
	return summary
}
