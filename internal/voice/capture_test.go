package voice

import (
	"context"
	"testing"
	"time"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/session"
)

func openMock(t *testing.T) *MockTransport {
	t.Helper()
	tr := NewMockTransport()
	tr.AutoOpen = false
	if _, err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return tr
}

func TestCapturePipelineSendsInOrderAndTouchesOnSpeech(t *testing.T) {
	clock := newFakeClock()
	sess := session.New(clock.Now())
	tr := openMock(t)
	c := NewCapturePipeline(sess, tr, 0)
	c.now = clock.Now

	var inputs int
	c.OnInput = func(audio.Frame) { inputs++ }

	clock.Advance(10 * time.Second)
	for i := 1; i <= 3; i++ {
		f := micFrame(0)
		f.Seq = uint64(i)
		c.Process(context.Background(), f)
	}
	if got := sess.IdleFor(clock.Now()); got != 10*time.Second {
		t.Fatalf("silent frames touched activity: idle = %v", got)
	}
	c.Process(context.Background(), micFrame(0.5))
	if got := sess.IdleFor(clock.Now()); got != 0 {
		t.Fatalf("speech did not touch activity: idle = %v", got)
	}

	sent := tr.SentAudio()
	if len(sent) != 4 || inputs != 4 {
		t.Fatalf("sent=%d inputs=%d, want 4 and 4", len(sent), inputs)
	}
	for i := 0; i < 3; i++ {
		if sent[i].Seq != uint64(i+1) {
			t.Fatalf("sent[%d].Seq = %d, want %d", i, sent[i].Seq, i+1)
		}
	}
}

func TestCapturePipelineMutedRecordsButDoesNotSend(t *testing.T) {
	sess := session.New(time.Now())
	sess.SetMuted(true)
	tr := openMock(t)
	c := NewCapturePipeline(sess, tr, 0)
	var inputs int
	c.OnInput = func(audio.Frame) { inputs++ }

	c.Process(context.Background(), micFrame(0.5))
	if len(tr.SentAudio()) != 0 {
		t.Fatalf("muted frame was sent")
	}
	if inputs != 1 {
		t.Fatalf("inputs = %d, want 1", inputs)
	}
}

func TestCapturePipelineDropsOnSendFailureAndStopsWhenGuardDown(t *testing.T) {
	sess := session.New(time.Now())
	tr := openMock(t)
	tr.SendErr = errStub
	c := NewCapturePipeline(sess, tr, 0)
	var drops, inputs int
	c.OnDrop = func(error) { drops++ }
	c.OnInput = func(audio.Frame) { inputs++ }

	c.Process(context.Background(), micFrame(0.2))
	c.Process(context.Background(), micFrame(0.2))
	if drops != 2 {
		t.Fatalf("drops = %d, want 2", drops)
	}

	sess.Revoke()
	c.Process(context.Background(), micFrame(0.2))
	if drops != 2 || inputs != 2 {
		t.Fatalf("frame processed after guard down: drops=%d inputs=%d", drops, inputs)
	}
}

func TestChannelDeviceDropsWhenFull(t *testing.T) {
	d := NewChannelDevice(1)
	if d.Push(micFrame(0)) {
		t.Fatalf("Push() before Open = true")
	}
	frames, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !d.Push(micFrame(0)) {
		t.Fatalf("first Push() = false")
	}
	if d.Push(micFrame(0)) {
		t.Fatalf("second Push() = true, want drop while unconsumed")
	}
	f := <-frames
	if f.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", f.Seq)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if d.Push(micFrame(0)) {
		t.Fatalf("Push() after Close = true")
	}
	if _, ok := <-frames; ok {
		t.Fatalf("frames channel still open after Close")
	}
}
