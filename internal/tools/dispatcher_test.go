package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antoniostano/mrsmart/internal/phone"
	"github.com/antoniostano/mrsmart/internal/workspace"
)

type recordingSender struct {
	mu      sync.Mutex
	results []Result
	err     error
	got     chan Result
}

func newRecordingSender() *recordingSender {
	return &recordingSender{got: make(chan Result, 16)}
}

func (s *recordingSender) SendToolResult(ctx context.Context, res Result) error {
	s.mu.Lock()
	s.results = append(s.results, res)
	err := s.err
	s.mu.Unlock()
	s.got <- res
	return err
}

func (s *recordingSender) wait(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-s.got:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tool result")
		return Result{}
	}
}

type fakeCaller struct {
	calls []phone.CallRequest
	id    string
	err   error
}

func (f *fakeCaller) CreateCall(ctx context.Context, settings phone.Settings, req phone.CallRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.id, f.err
}

func newBuiltinRegistry(t *testing.T, caller Caller, settings phone.Settings) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := RegisterBuiltins(reg, BuiltinDeps{
		Workspace:     workspace.NewStoreFromFixtures(workspace.DefaultFixtures(time.Now())),
		Caller:        caller,
		PhoneSettings: phone.NewSettingsStore(settings),
	})
	if err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	return reg
}

func TestDispatcherRunsCallsInOrderOncePerID(t *testing.T) {
	reg := NewRegistry()
	var order []string
	var mu sync.Mutex
	release := make(chan struct{})
	err := reg.Register(Capability{
		Declaration: Declaration{Name: "echo"},
		Handler: func(ctx context.Context, args Args) (string, error) {
			if args.String("wait") == "yes" {
				<-release
			}
			mu.Lock()
			order = append(order, args.String("v"))
			mu.Unlock()
			return "ok " + args.String("v"), nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	sender := newRecordingSender()
	var activity atomic.Int32
	d := NewDispatcher(context.Background(), reg, sender, Hooks{OnActivity: func() { activity.Add(1) }})
	defer d.Close()

	if !d.Submit(Call{ID: "a", Name: "echo", Args: Args{"v": "1", "wait": "yes"}}) {
		t.Fatalf("Submit(a) = false")
	}
	d.Submit(Call{ID: "b", Name: "echo", Args: Args{"v": "2"}})
	if d.Submit(Call{ID: "a", Name: "echo", Args: Args{"v": "dup"}}) {
		t.Fatalf("duplicate Submit(a) = true, want false")
	}
	close(release)

	first := sender.wait(t)
	second := sender.wait(t)
	if first.ID != "a" || second.ID != "b" {
		t.Fatalf("result order = %s,%s, want a,b", first.ID, second.ID)
	}
	if first.Message != "ok 1" || first.Status != StatusSuccess {
		t.Fatalf("first result = %+v", first)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "1,2" {
		t.Fatalf("execution order = %v", order)
	}
	if got := activity.Load(); got != 4 {
		t.Fatalf("activity callbacks = %d, want 4", got)
	}
}

func TestDispatcherErrorResults(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Capability{
		Declaration: Declaration{Name: "boom"},
		Handler: func(ctx context.Context, args Args) (string, error) {
			return "", errors.New("mailbox offline")
		},
	})
	_ = reg.Register(Capability{
		Declaration: Declaration{Name: "panics"},
		Handler: func(ctx context.Context, args Args) (string, error) {
			panic("bad state")
		},
	})
	d := NewDispatcher(context.Background(), reg, newRecordingSender(), Hooks{})
	defer d.Close()

	cases := []struct {
		name string
		want string
	}{
		{"missing", "Tool not found: missing"},
		{"boom", "Failed to execute tool: mailbox offline"},
		{"panics", "Failed to execute tool: panic: bad state"},
	}
	for _, tc := range cases {
		res, _ := d.Execute(context.Background(), Call{ID: tc.name, Name: tc.name})
		if res.Status != StatusError || res.Message != tc.want {
			t.Fatalf("Execute(%s) = %+v, want error %q", tc.name, res, tc.want)
		}
	}
}

func TestDispatcherSendFailureIsDropped(t *testing.T) {
	reg := newBuiltinRegistry(t, nil, phone.Settings{})
	sender := newRecordingSender()
	sender.err = errors.New("session closed")
	d := NewDispatcher(context.Background(), reg, sender, Hooks{})
	defer d.Close()

	d.Submit(Call{ID: "1", Name: "listEmails"})
	d.Submit(Call{ID: "2", Name: "getCalendarEvents", Args: Args{"dateInfo": "today"}})
	if got := sender.wait(t); got.ID != "1" {
		t.Fatalf("first result id = %s", got.ID)
	}
	if got := sender.wait(t); got.Message != "You have 2 events scheduled." {
		t.Fatalf("second result = %+v", got)
	}
}

func TestDispatcherCloseRejectsSubmit(t *testing.T) {
	d := NewDispatcher(context.Background(), NewRegistry(), newRecordingSender(), Hooks{})
	d.Close()
	d.Close()
	if d.Submit(Call{ID: "x", Name: "listEmails"}) {
		t.Fatalf("Submit() after Close = true")
	}
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatalf("worker did not exit after Close")
	}
}

func TestBuiltinEmailAndCalendar(t *testing.T) {
	reg := newBuiltinRegistry(t, nil, phone.Settings{})
	d := NewDispatcher(context.Background(), reg, newRecordingSender(), Hooks{})
	defer d.Close()

	cases := []struct {
		call Call
		want string
	}{
		{Call{Name: "listEmails"}, "Found 3 recent emails. Top one from ceo@techcorp.com: Q4 Strategy Meeting"},
		{Call{Name: "sendEmail", Args: Args{"to": "a@b.com", "subject": "Hi", "body": "Hello"}}, "Email sent successfully."},
		{Call{Name: "createDraft", Args: Args{"to": "a@b.com", "subject": "Hi", "body": "Hello"}}, "Draft created."},
		{Call{Name: "bookAppointment", Args: Args{"title": "Dentist", "time": "tomorrow"}}, "Appointment booked."},
		{Call{Name: "getCalendarEvents", Args: Args{"dateInfo": "today"}}, "You have 3 events scheduled."},
		{Call{Name: "listEmails"}, "Found 3 recent emails. Top one from me@nexus.ai: Hi"},
	}
	for _, tc := range cases {
		res, _ := d.Execute(context.Background(), tc.call)
		if res.Status != StatusSuccess || res.Message != tc.want {
			t.Fatalf("Execute(%s) = %+v, want %q", tc.call.Name, res, tc.want)
		}
	}

	res, _ := d.Execute(context.Background(), Call{Name: "sendEmail", Args: Args{"to": "a@b.com"}})
	want := "Missing required argument 'subject'. Ask the user for it before calling sendEmail."
	if res.Status != StatusError || res.Message != want {
		t.Fatalf("sendEmail missing subject = %+v", res)
	}
}

func TestMakePhoneCall(t *testing.T) {
	configured := phone.Settings{APIKey: "key", AgentID: "agent", FromNumber: "+15550001111"}

	t.Run("invalid number never dials", func(t *testing.T) {
		caller := &fakeCaller{id: "call_1"}
		d := NewDispatcher(context.Background(), newBuiltinRegistry(t, caller, configured), newRecordingSender(), Hooks{})
		defer d.Close()
		res, _ := d.Execute(context.Background(), Call{Name: "makePhoneCall", Args: Args{"phoneNumber": "Alex", "context": "hi"}})
		if res.Status != StatusError || !strings.HasPrefix(res.Message, "Invalid Phone Number: 'Alex'.") {
			t.Fatalf("result = %+v", res)
		}
		if len(caller.calls) != 0 {
			t.Fatalf("caller invoked %d times", len(caller.calls))
		}
	})

	t.Run("missing from number", func(t *testing.T) {
		caller := &fakeCaller{id: "call_1"}
		settings := configured
		settings.FromNumber = ""
		d := NewDispatcher(context.Background(), newBuiltinRegistry(t, caller, settings), newRecordingSender(), Hooks{})
		defer d.Close()
		res, _ := d.Execute(context.Background(), Call{Name: "makePhoneCall", Args: Args{"phoneNumber": "+1 555 123 4567", "context": "hi"}})
		if res.Status != StatusError || res.Message != phoneConfigMessage {
			t.Fatalf("result = %+v", res)
		}
		if len(caller.calls) != 0 {
			t.Fatalf("caller invoked %d times", len(caller.calls))
		}
	})

	t.Run("deployed", func(t *testing.T) {
		caller := &fakeCaller{id: "call_42"}
		d := NewDispatcher(context.Background(), newBuiltinRegistry(t, caller, configured), newRecordingSender(), Hooks{})
		defer d.Close()
		res, _ := d.Execute(context.Background(), Call{Name: "makePhoneCall", Args: Args{"phoneNumber": "+1 555-123-4567", "context": "Reschedule"}})
		if res.Status != StatusSuccess || res.Message != "Call agent deployed. ID: call_42" {
			t.Fatalf("result = %+v", res)
		}
		if len(caller.calls) != 1 || caller.calls[0].ToNumber != "+15551234567" {
			t.Fatalf("caller calls = %+v", caller.calls)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		caller := &fakeCaller{err: errors.New("connection refused")}
		d := NewDispatcher(context.Background(), newBuiltinRegistry(t, caller, configured), newRecordingSender(), Hooks{})
		defer d.Close()
		res, _ := d.Execute(context.Background(), Call{Name: "makePhoneCall", Args: Args{"phoneNumber": "+15551234567", "context": "x"}})
		if res.Status != StatusError || res.Message != "Failed to execute tool: connection refused" {
			t.Fatalf("result = %+v", res)
		}
	})
}

func TestDispatcherBlocksSecretArguments(t *testing.T) {
	reg := newBuiltinRegistry(t, nil, phone.Settings{})
	d := NewDispatcher(context.Background(), reg, newRecordingSender(), Hooks{})
	defer d.Close()

	res, _ := d.Execute(context.Background(), Call{Name: "sendEmail", Args: Args{
		"to": "x@y.com", "subject": "keys", "body": "password: hunter2hunter2",
	}})
	if res.Status != StatusError || !strings.HasPrefix(res.Message, "Request blocked") {
		t.Fatalf("result = %+v, want blocked", res)
	}
}
