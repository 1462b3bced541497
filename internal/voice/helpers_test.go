package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/mrsmart/internal/audio"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// replyFrame is a mono 24 kHz frame of the given length.
func replyFrame(d time.Duration, level float32) audio.Frame {
	n := int(d * audio.PlaybackSampleRate / time.Second)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level
	}
	return audio.Frame{SampleRate: audio.PlaybackSampleRate, Channels: 1, Samples: samples}
}

func micFrame(level float32) audio.Frame {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = level
	}
	return audio.Frame{SampleRate: audio.CaptureSampleRate, Channels: 1, Samples: samples}
}

type stubSummarizer struct {
	text  string
	err   error
	calls int
}

func (s *stubSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	s.calls++
	return s.text, s.err
}

var errStub = errors.New("stub failure")

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
