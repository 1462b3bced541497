package voice

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/antoniostano/mrsmart/internal/audio"
)

const DefaultVADThreshold = 0.01

// CaptureDevice produces microphone frames until closed.
type CaptureDevice interface {
	Open(ctx context.Context) (<-chan audio.Frame, error)
	Close() error
}

// AudioSender is the subset of Transport used by the capture path.
type AudioSender interface {
	SendAudio(ctx context.Context, frame audio.Frame) error
}

type captureState interface {
	Live() bool
	Muted() bool
	Touch(now time.Time)
}

// CapturePipeline forwards microphone frames to the model on one goroutine,
// preserving capture order.
type CapturePipeline struct {
	state     captureState
	sender    AudioSender
	threshold float64
	now       func() time.Time

	// OnInput receives every frame captured while live, muted or not.
	OnInput func(f audio.Frame)
	// OnDrop is told about frames that could not be sent.
	OnDrop func(err error)
	// OnSent fires after a frame reaches the transport.
	OnSent func(f audio.Frame)
}

func NewCapturePipeline(state captureState, sender AudioSender, threshold float64) *CapturePipeline {
	if threshold <= 0 {
		threshold = DefaultVADThreshold
	}
	return &CapturePipeline{
		state:     state,
		sender:    sender,
		threshold: threshold,
		now:       time.Now,
	}
}

// Run consumes frames until the channel closes or ctx is done.
func (c *CapturePipeline) Run(ctx context.Context, frames <-chan audio.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.Process(ctx, f)
		}
	}
}

// Process handles one frame.
func (c *CapturePipeline) Process(ctx context.Context, f audio.Frame) {
	if !c.state.Live() {
		return
	}
	if c.OnInput != nil {
		c.OnInput(f)
	}
	if c.state.Muted() {
		return
	}
	if audio.RMS(f.Samples) > c.threshold {
		c.state.Touch(c.now())
	}
	if err := c.sender.SendAudio(ctx, f); err != nil {
		if c.OnDrop != nil {
			c.OnDrop(err)
		}
		if !errors.Is(err, context.Canceled) {
			log.Printf("voice: dropped capture frame seq=%d: %v", f.Seq, err)
		}
		return
	}
	if c.OnSent != nil {
		c.OnSent(f)
	}
}

var ErrDeviceClosed = errors.New("capture device closed")

// ChannelDevice is a CaptureDevice fed by Push, typically from a browser
// websocket. Push never blocks: a frame is dropped when the previous one has
// not been consumed yet.
type ChannelDevice struct {
	mu     sync.Mutex
	ch     chan audio.Frame
	seq    uint64
	closed bool
	opened bool
}

func NewChannelDevice(buffer int) *ChannelDevice {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelDevice{ch: make(chan audio.Frame, buffer)}
}

func (d *ChannelDevice) Open(context.Context) (<-chan audio.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	d.opened = true
	return d.ch, nil
}

// Push offers a frame and reports whether it was accepted.
func (d *ChannelDevice) Push(f audio.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.opened {
		return false
	}
	d.seq++
	f.Seq = d.seq
	select {
	case d.ch <- f:
		return true
	default:
		return false
	}
}

func (d *ChannelDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.ch)
	return nil
}
