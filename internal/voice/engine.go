package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antoniostano/mrsmart/internal/audio"
	"github.com/antoniostano/mrsmart/internal/observability"
	"github.com/antoniostano/mrsmart/internal/policy"
	"github.com/antoniostano/mrsmart/internal/reliability"
	"github.com/antoniostano/mrsmart/internal/session"
	"github.com/antoniostano/mrsmart/internal/tools"
)

const (
	DefaultAssistantName = "Mr. Smart"
	DefaultGreetingDelay = 500 * time.Millisecond

	GreetingPrompt = "Say 'Mr. Smart here. Ready to work.' in a professional, crisp, and energetic tone."

	StatusReady        = "Ready to connect"
	StatusInitializing = "Initializing Audio..."
	StatusConnecting   = "Connecting to Gemini..."
	StatusListening    = "Listening..."
	StatusDisconnected = "Disconnected"

	finalizeTimeout = 60 * time.Second
)

var (
	ErrNoSession     = errors.New("no active voice session")
	ErrSessionClosed = errors.New("voice session closed")
)

// ConnectionError reports a failed or dropped model connection.
type ConnectionError struct {
	Op     string
	Code   int
	Status string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("voice %s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("voice %s: %s: %v", e.Op, e.Status, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type UpdateKind string

const (
	UpdateStatus     UpdateKind = "status"
	UpdateTranscript UpdateKind = "transcript"
	UpdateTool       UpdateKind = "tool"
)

type ToolUpdate struct {
	ID      string
	Name    string
	Phase   string
	Status  tools.Status
	Message string
	Risk    policy.Risk
}

// Update is published to subscribers as the session progresses.
type Update struct {
	Kind      UpdateKind
	SessionID string
	State     session.State
	Status    string
	Speaker   Speaker
	Text      string
	Tool      *ToolUpdate
	At        time.Time
}

// Snapshot is the engine's externally visible state.
type Snapshot struct {
	Session  *session.Snapshot `json:"session,omitempty"`
	State    session.State     `json:"state"`
	Status   string            `json:"status"`
	Speaking bool              `json:"speaking"`
}

type Options struct {
	Transports    TransportFactory
	Registry      *tools.Registry
	Summarizer    Summarizer
	Sink          RecordingSink
	Sessions      *session.Manager
	Metrics       *observability.Metrics
	AssistantName string

	VADThreshold        float64
	InactivityPeriod    time.Duration
	InactivityThreshold time.Duration
	GreetingDelay       time.Duration
	FinalizeSettle      time.Duration
	RecordingLimit      time.Duration
}

// Engine owns the lifecycle of the single live voice session.
type Engine struct {
	opts    Options
	metrics *observability.Metrics
	now     func() time.Time

	mu     sync.Mutex
	cur    *run
	status string

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int

	finalizers sync.WaitGroup
}

// run is everything that belongs to one session attempt.
type run struct {
	sess       *session.Session
	ctx        context.Context
	cancel     context.CancelFunc
	device     CaptureDevice
	transport  Transport
	playback   *PlaybackScheduler
	recorder   *Recorder
	dispatcher *tools.Dispatcher

	connectAt    time.Time
	openedAt     atomic.Int64
	gotAudio     atomic.Bool
	finalizeOnce sync.Once
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Transports == nil {
		return nil, errors.New("transport factory is required")
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(0)
	}
	if strings.TrimSpace(opts.AssistantName) == "" {
		opts.AssistantName = DefaultAssistantName
	}
	if opts.VADThreshold <= 0 {
		opts.VADThreshold = DefaultVADThreshold
	}
	if opts.GreetingDelay < 0 {
		opts.GreetingDelay = 0
	}
	return &Engine{
		opts:    opts,
		metrics: opts.Metrics,
		now:     time.Now,
		status:  StatusReady,
		subs:    make(map[int]chan Update),
	}, nil
}

// Connect starts a new session, tearing down any previous one first. Audio
// comes from dev and reply audio goes to every sink. The engine lock is not
// held while the device and transport open, so Disconnect can abort a slow
// dial; ctx bounds the dial only.
func (e *Engine) Connect(ctx context.Context, dev CaptureDevice, sinks ...PlaybackSink) (session.Snapshot, error) {
	if dev == nil {
		return session.Snapshot{}, errors.New("capture device is required")
	}
	r, err := e.beginRun(dev, sinks)
	if err != nil {
		return session.Snapshot{}, err
	}

	openCtx, openCancel := context.WithCancel(r.ctx)
	defer openCancel()
	stop := context.AfterFunc(ctx, openCancel)
	defer stop()

	frames, err := dev.Open(openCtx)
	if err != nil {
		return r.sess.Snapshot(), e.failConnect(r, "open capture device", err)
	}

	if !e.advance(r, StatusConnecting) {
		return r.sess.Snapshot(), e.abandonedConnect(r, "open capture device")
	}
	events, err := r.transport.Open(openCtx)
	if err != nil {
		return r.sess.Snapshot(), e.failConnect(r, "open transport", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur != r || !r.sess.Live() {
		// Torn down mid-dial; teardown already closed the transport.
		return r.sess.Snapshot(), e.abandonedConnect(r, "open transport")
	}
	sender := &guardedSender{guard: r.sess, transport: r.transport}
	r.dispatcher = tools.NewDispatcher(r.ctx, e.opts.Registry, sender, e.toolHooks(r))

	go e.eventLoop(r, events, frames)
	log.Printf("voice: session connecting session_id=%s", r.sess.ID)
	return r.sess.Snapshot(), nil
}

// beginRun registers a new run as current, in state Connecting.
func (e *Engine) beginRun(dev CaptureDevice, sinks []PlaybackSink) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev := e.cur; prev != nil && prev.sess.Revoke() {
		e.teardownLocked(prev, StatusDisconnected, "replaced")
	}

	sess, err := e.opts.Sessions.Begin()
	if err != nil {
		return nil, err
	}
	start := e.now()
	sess.SetState(session.StateConnecting)
	r := &run{sess: sess, device: dev, connectAt: start}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.recorder = NewRecorder(RecorderOptions{
		SessionID:     sess.ID,
		AssistantName: e.opts.AssistantName,
		Start:         start,
		Now:           e.now,
		Settle:        e.opts.FinalizeSettle,
		Limit:         e.opts.RecordingLimit,
		Summarizer:    e.opts.Summarizer,
		Sink:          e.opts.Sink,
	})
	r.playback = NewPlaybackScheduler(e.now, start, append(append([]PlaybackSink(nil), sinks...), r.recorder)...)
	// Created up front so a teardown during the dial can close it.
	r.transport = e.opts.Transports()
	e.cur = r
	e.metrics.SessionStarted()
	e.setStatusLocked(r, StatusInitializing)
	return r, nil
}

// advance sets status on r while it is still the live run.
func (e *Engine) advance(r *run, status string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur != r || !r.sess.Live() {
		return false
	}
	e.setStatusLocked(r, status)
	return true
}

func (e *Engine) failConnect(r *run, op string, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !r.sess.Revoke() {
		return e.abandonedConnect(r, op)
	}
	log.Printf("voice: connect failed session_id=%s op=%s: %v", r.sess.ID, op, cause)
	e.teardownLocked(r, reliability.StatusConnectFailed, "connect_failed")
	return &ConnectionError{Op: op, Status: reliability.StatusConnectFailed, Err: cause}
}

// abandonedConnect reports a connect that was disconnected or replaced
// before it finished.
func (e *Engine) abandonedConnect(r *run, op string) error {
	log.Printf("voice: connect abandoned session_id=%s op=%s", r.sess.ID, op)
	return &ConnectionError{Op: op, Status: StatusDisconnected, Err: ErrSessionClosed}
}

// Disconnect ends the live session. It is idempotent and safe without one.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.cur
	if r == nil || !r.sess.Revoke() {
		return
	}
	e.teardownLocked(r, StatusDisconnected, "user")
}

// DisconnectSession ends the live session only if its id matches. It reports
// whether a session was ended.
func (e *Engine) DisconnectSession(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.cur
	if r == nil || r.sess.ID != sessionID || !r.sess.Revoke() {
		return false
	}
	e.teardownLocked(r, StatusDisconnected, "user")
	return true
}

// endAbnormally runs when the transport closes or fails on its own.
func (e *Engine) endAbnormally(r *run, status, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !r.sess.Revoke() {
		return
	}
	log.Printf("voice: session ended session_id=%s reason=%s status=%q", r.sess.ID, reason, status)
	e.teardownLocked(r, status, reason)
}

// teardownLocked releases every resource of r. The caller has already
// lowered the guard.
func (e *Engine) teardownLocked(r *run, status, reason string) {
	r.sess.SetState(session.StateClosing)
	r.cancel()
	if r.dispatcher != nil {
		r.dispatcher.Close()
	}
	if err := r.device.Close(); err != nil {
		log.Printf("voice: close capture device session_id=%s: %v", r.sess.ID, err)
	}
	if t := r.transport; t != nil {
		go func() {
			if err := t.Close(); err != nil {
				log.Printf("voice: close transport session_id=%s: %v", r.sess.ID, err)
			}
		}()
	}
	r.playback.Interrupt()
	e.opts.Sessions.End(r.sess, reason)
	e.metrics.SessionEnded(reason)
	e.setStatusLocked(r, status)
	e.finalize(r)
}

func (e *Engine) finalize(r *run) {
	r.finalizeOnce.Do(func() {
		e.finalizers.Add(1)
		go func() {
			defer e.finalizers.Done()
			ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
			defer cancel()
			rec, err := r.recorder.Finalize(ctx)
			switch {
			case errors.Is(err, ErrNoAudio):
				log.Printf("voice: nothing recorded session_id=%s", r.sess.ID)
			case err != nil:
				e.metrics.RecordingFailed()
				log.Printf("voice: save recording session_id=%s: %v", r.sess.ID, err)
			default:
				e.metrics.RecordingSaved()
				if rec.Summary == SummaryFailedPlaceholder {
					e.metrics.SummaryFailed()
				}
				log.Printf("voice: recording saved session_id=%s id=%s duration=%s", r.sess.ID, rec.ID, rec.Duration.Round(time.Millisecond))
			}
		}()
	})
}

// Wait blocks until every background finalizer has finished.
func (e *Engine) Wait() {
	e.finalizers.Wait()
}

func (e *Engine) eventLoop(r *run, events <-chan Event, frames <-chan audio.Frame) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				e.endAbnormally(r, reliability.StatusConnectionClosed, "transport_closed")
				return
			}
			if !r.sess.Live() {
				return
			}
			e.metrics.TransportMessage("in", string(ev.Type))
			switch ev.Type {
			case EventOpen:
				e.handleOpen(r, frames)
			case EventMessage:
				if ev.Message != nil {
					e.handleMessage(r, ev.Message)
				}
			case EventClose:
				e.endAbnormally(r, reliability.StatusConnectionClosed, "closed")
				return
			case EventError:
				detail := ev.Reason
				if ev.Err != nil {
					detail = strings.TrimSpace(detail + " " + ev.Err.Error())
				}
				e.endAbnormally(r, reliability.ConnectionStatus(ev.Code, detail), "error")
				return
			}
		}
	}
}

func (e *Engine) handleOpen(r *run, frames <-chan audio.Frame) {
	now := e.now()
	if !r.openedAt.CompareAndSwap(0, now.UnixNano()) {
		return
	}
	r.sess.SetState(session.StateActive)
	r.sess.Touch(now)
	e.metrics.ObserveStage("connect_to_open", now.Sub(r.connectAt))
	e.setStatus(r, StatusListening)
	log.Printf("voice: session open session_id=%s", r.sess.ID)

	sender := &guardedSender{guard: r.sess, transport: r.transport}

	capture := NewCapturePipeline(r.sess, sender, e.opts.VADThreshold)
	capture.now = e.now
	capture.OnInput = r.recorder.AddInput
	capture.OnDrop = func(error) { e.metrics.CaptureDropped() }
	go capture.Run(r.ctx, frames)

	monitor := NewInactivityMonitor(r.sess, sender, r.playback.Speaking, e.opts.InactivityPeriod, e.opts.InactivityThreshold)
	monitor.now = e.now
	monitor.OnCheckIn = func() {
		e.metrics.CheckIn()
		log.Printf("voice: inactivity check-in session_id=%s", r.sess.ID)
	}
	go monitor.Run(r.ctx)

	go e.greet(r, sender)
}

func (e *Engine) greet(r *run, sender TextSender) {
	timer := time.NewTimer(e.opts.GreetingDelay)
	defer timer.Stop()
	select {
	case <-r.ctx.Done():
		return
	case <-timer.C:
	}
	if err := sender.SendText(r.ctx, GreetingPrompt, true); err != nil {
		log.Printf("voice: greeting not sent session_id=%s: %v", r.sess.ID, err)
	}
}

func (e *Engine) handleMessage(r *run, m *ServerMessage) {
	if m.InputTranscript != "" {
		r.sess.Touch(e.now())
		r.recorder.Append(SpeakerUser, m.InputTranscript)
		e.publish(Update{Kind: UpdateTranscript, SessionID: r.sess.ID, Speaker: SpeakerUser, Text: m.InputTranscript})
	}
	if m.OutputTranscript != "" {
		r.recorder.Append(SpeakerAssistant, m.OutputTranscript)
		e.publish(Update{Kind: UpdateTranscript, SessionID: r.sess.ID, Speaker: SpeakerAssistant, Text: m.OutputTranscript})
	}
	for _, chunk := range m.Audio {
		frame, err := audio.DecodePCM16(chunk, audio.PlaybackSampleRate, 1)
		if err != nil {
			e.metrics.CodecError("model")
			log.Printf("voice: dropped reply chunk session_id=%s: %v", r.sess.ID, err)
			continue
		}
		if r.gotAudio.CompareAndSwap(false, true) {
			if opened := r.openedAt.Load(); opened != 0 {
				e.metrics.ObserveFirstAudioLatency(e.now().Sub(time.Unix(0, opened)))
			}
		}
		r.playback.Schedule(frame)
	}
	if m.Interrupted {
		if dropped := r.playback.Interrupt(); dropped > 0 {
			log.Printf("voice: interrupted session_id=%s dropped_frames=%d", r.sess.ID, dropped)
		}
		e.metrics.Interrupted()
	}
	for _, call := range m.ToolCalls {
		r.dispatcher.Submit(call)
	}
}

func (e *Engine) toolHooks(r *run) tools.Hooks {
	return tools.Hooks{
		OnActivity: func() {
			if r.sess.Live() {
				r.sess.Touch(e.now())
			}
		},
		OnStart: func(call tools.Call) {
			if !r.sess.Live() {
				return
			}
			e.setStatus(r, "Executing "+call.Name+"...")
			e.publish(Update{
				Kind:      UpdateTool,
				SessionID: r.sess.ID,
				Tool: &ToolUpdate{
					ID:    call.ID,
					Name:  call.Name,
					Phase: "started",
					Risk:  policy.DecideToolCall(call.Name, "").Risk,
				},
			})
		},
		OnResult: func(call tools.Call, res tools.Result, elapsed time.Duration) {
			e.metrics.ObserveToolCall(call.Name, string(res.Status), elapsed)
			if !r.sess.Live() {
				return
			}
			e.publish(Update{
				Kind:      UpdateTool,
				SessionID: r.sess.ID,
				Tool: &ToolUpdate{
					ID:      res.ID,
					Name:    res.Name,
					Phase:   "finished",
					Status:  res.Status,
					Message: res.Message,
				},
			})
			e.setStatus(r, StatusListening)
		},
	}
}

// SetMuted toggles microphone forwarding for the live session.
func (e *Engine) SetMuted(muted bool) error {
	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil || !r.sess.Live() {
		return ErrNoSession
	}
	r.sess.SetMuted(muted)
	return nil
}

func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// State is the engine's position in the lifecycle. A torn-down session
// returns the engine to Idle; its own snapshot keeps reporting Closed.
func (e *Engine) State() session.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return session.StateIdle
	}
	return engineState(e.cur.sess.State())
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Snapshot{State: session.StateIdle, Status: e.status}
	if e.cur != nil {
		snap := e.cur.sess.Snapshot()
		out.Session = &snap
		out.State = engineState(snap.State)
		out.Speaking = e.cur.sess.Live() && e.cur.playback.Speaking()
	}
	return out
}

// engineState maps a session state to the engine's lifecycle position.
func engineState(st session.State) session.State {
	if st == session.StateClosed {
		return session.StateIdle
	}
	return st
}

// Subscribe returns a stream of updates and its cancel func. Slow
// subscribers miss updates rather than stall the session.
func (e *Engine) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 256)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

func (e *Engine) setStatus(r *run, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur != r {
		return
	}
	e.setStatusLocked(r, status)
}

func (e *Engine) setStatusLocked(r *run, status string) {
	e.status = status
	e.publish(Update{Kind: UpdateStatus, SessionID: r.sess.ID, State: r.sess.State(), Status: status})
}

func (e *Engine) publish(u Update) {
	if u.At.IsZero() {
		u.At = e.now().UTC()
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// guardedSender refuses to talk to the transport once the guard is down.
type guardedSender struct {
	guard     session.Guard
	transport Transport
}

func (s *guardedSender) SendAudio(ctx context.Context, f audio.Frame) error {
	if !s.guard.Live() {
		return ErrSessionClosed
	}
	return s.transport.SendAudio(ctx, f)
}

func (s *guardedSender) SendText(ctx context.Context, text string, turnComplete bool) error {
	if !s.guard.Live() {
		return ErrSessionClosed
	}
	return s.transport.SendText(ctx, text, turnComplete)
}

func (s *guardedSender) SendToolResult(ctx context.Context, res tools.Result) error {
	if !s.guard.Live() {
		return ErrSessionClosed
	}
	return s.transport.SendToolResult(ctx, res)
}
