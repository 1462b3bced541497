package voice

import (
	"sync"
	"time"

	"github.com/antoniostano/mrsmart/internal/audio"
)

// ScheduledFrame is a reply frame placed on the session's output timeline.
type ScheduledFrame struct {
	Frame audio.Frame
	Start time.Duration
	End   time.Duration
}

// PlaybackSink receives scheduled frames. Implementations must not block and
// must not call back into the scheduler.
type PlaybackSink interface {
	Play(f ScheduledFrame)
	// Flush stops everything scheduled at or after at.
	Flush(at time.Duration)
}

// PlaybackScheduler lays reply audio end to end on a single output clock so
// consecutive frames never overlap or leave gaps.
type PlaybackScheduler struct {
	mu     sync.Mutex
	now    func() time.Time
	origin time.Time
	cursor time.Duration
	queue  []ScheduledFrame
	sinks  []PlaybackSink
}

func NewPlaybackScheduler(now func() time.Time, origin time.Time, sinks ...PlaybackSink) *PlaybackScheduler {
	if now == nil {
		now = time.Now
	}
	return &PlaybackScheduler{now: now, origin: origin, sinks: sinks}
}

// CurrentTime is elapsed output time since the session started.
func (p *PlaybackScheduler) CurrentTime() time.Duration {
	return p.now().Sub(p.origin)
}

func (p *PlaybackScheduler) Schedule(f audio.Frame) ScheduledFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.CurrentTime()
	if p.cursor < now {
		p.cursor = now
	}
	sf := ScheduledFrame{Frame: f, Start: p.cursor, End: p.cursor + f.Duration()}
	p.cursor = sf.End
	p.pruneLocked(now)
	p.queue = append(p.queue, sf)
	for _, s := range p.sinks {
		s.Play(sf)
	}
	return sf
}

// Interrupt drops every queued frame and resets the cursor. It returns the
// number of frames that had not finished playing.
func (p *PlaybackScheduler) Interrupt() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.CurrentTime()
	p.pruneLocked(now)
	dropped := len(p.queue)
	p.queue = nil
	p.cursor = 0
	for _, s := range p.sinks {
		s.Flush(now)
	}
	return dropped
}

// Speaking reports whether scheduled audio extends past the current time.
func (p *PlaybackScheduler) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor > p.CurrentTime()
}

func (p *PlaybackScheduler) Cursor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Pending is the number of frames not yet finished.
func (p *PlaybackScheduler) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked(p.CurrentTime())
	return len(p.queue)
}

func (p *PlaybackScheduler) pruneLocked(now time.Duration) {
	i := 0
	for i < len(p.queue) && p.queue[i].End <= now {
		i++
	}
	if i > 0 {
		p.queue = append(p.queue[:0], p.queue[i:]...)
	}
}
