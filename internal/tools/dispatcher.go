package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/mrsmart/internal/policy"
)

// ResultSender delivers a tool result back to the model.
type ResultSender interface {
	SendToolResult(ctx context.Context, res Result) error
}

// Hooks observe dispatch. All are optional and run on the worker goroutine.
type Hooks struct {
	// OnActivity fires for every attempt, before and after execution.
	OnActivity func()
	OnStart    func(call Call)
	OnResult   func(call Call, res Result, elapsed time.Duration)
}

// Dispatcher executes tool calls one at a time, in arrival order, on its own
// goroutine so the audio path never waits for a handler.
type Dispatcher struct {
	registry *Registry
	sender   ResultSender
	hooks    Hooks
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []Call
	seen   map[string]struct{}
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func NewDispatcher(ctx context.Context, registry *Registry, sender ResultSender, hooks Hooks) *Dispatcher {
	ctx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		registry: registry,
		sender:   sender,
		hooks:    hooks,
		timeout:  30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		seen:     make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Submit enqueues a call. It returns false for a duplicate id or after Close.
// Never blocks.
func (d *Dispatcher) Submit(call Call) bool {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	if _, dup := d.seen[call.ID]; dup {
		d.mu.Unlock()
		log.Printf("tools: ignoring duplicate call id=%s name=%s", call.ID, call.Name)
		return false
	}
	d.seen[call.ID] = struct{}{}
	d.queue = append(d.queue, call)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops the worker. Queued calls that have not started are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()

	if dropped > 0 {
		log.Printf("tools: dropped %d queued call(s) on close", dropped)
	}
	d.cancel()
}

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		if d.ctx.Err() != nil {
			return
		}
		call, ok := d.next()
		if !ok {
			select {
			case <-d.ctx.Done():
				return
			case <-d.wake:
				continue
			}
		}
		res, elapsed := d.Execute(d.ctx, call)
		if d.hooks.OnResult != nil {
			d.hooks.OnResult(call, res, elapsed)
		}
		if err := d.sender.SendToolResult(d.ctx, res); err != nil {
			log.Printf("tools: drop result id=%s name=%s: %v", res.ID, res.Name, err)
		}
	}
}

func (d *Dispatcher) next() (Call, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.queue) == 0 {
		return Call{}, false
	}
	call := d.queue[0]
	d.queue = d.queue[1:]
	return call, true
}

// Execute runs a single call synchronously and always produces a result.
func (d *Dispatcher) Execute(ctx context.Context, call Call) (Result, time.Duration) {
	start := time.Now()
	d.activity()
	if d.hooks.OnStart != nil {
		d.hooks.OnStart(call)
	}
	log.Printf("tools: executing name=%s id=%s args=%s", call.Name, call.ID, policy.RedactFields(call.Args))

	res := Result{ID: call.ID, Name: call.Name, Status: StatusSuccess}
	msg, err := d.run(ctx, call)
	if err != nil {
		res.Status = StatusError
		res.Message = errorMessage(call.Name, err)
		log.Printf("tools: name=%s id=%s failed: %v", call.Name, call.ID, err)
	} else {
		res.Message = msg
	}
	d.activity()
	return res, time.Since(start)
}

func (d *Dispatcher) run(ctx context.Context, call Call) (msg string, err error) {
	capability, ok := d.registry.Lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if call.Args == nil {
		call.Args = Args{}
	}
	if decision := policy.DecideToolCall(call.Name, argsText(call.Args)); decision.Blocked {
		return "", &ValidationError{Tool: call.Name, Message: decision.Reason}
	}
	if capability.Validate != nil {
		if err := capability.Validate(call.Args); err != nil {
			return "", err
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionError{Tool: call.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	msg, err = capability.Handler(runCtx, call.Args)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return "", err
		}
		return "", &ExecutionError{Tool: call.Name, Err: err}
	}
	if msg == "" {
		msg = "Action completed."
	}
	return msg, nil
}

func (d *Dispatcher) activity() {
	if d.hooks.OnActivity != nil {
		d.hooks.OnActivity()
	}
}

func errorMessage(name string, err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrUnknownTool) {
		return "Tool not found: " + name
	}
	var eerr *ExecutionError
	if errors.As(err, &eerr) {
		return "Failed to execute tool: " + eerr.Err.Error()
	}
	return "Failed to execute tool: " + err.Error()
}

func argsText(args Args) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
