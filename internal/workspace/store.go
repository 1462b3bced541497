package workspace

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const senderAddress = "me@nexus.ai"

type Email struct {
	ID        string    `json:"id" yaml:"id"`
	From      string    `json:"from" yaml:"from"`
	Subject   string    `json:"subject" yaml:"subject"`
	Body      string    `json:"body" yaml:"body"`
	Read      bool      `json:"read" yaml:"read"`
	Labels    []string  `json:"labels" yaml:"labels"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	IsDraft   bool      `json:"is_draft,omitempty" yaml:"is_draft"`
}

type CalendarEvent struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
	Attendees   []string  `json:"attendees" yaml:"attendees"`
	Description string    `json:"description,omitempty" yaml:"description"`
}

// Store is the in-process mailbox and calendar backing the assistant's
// email and calendar capabilities.
type Store struct {
	mu          sync.RWMutex
	emails      []Email
	events      []CalendarEvent
	subscribers map[int]func()
	nextSub     int
	now         func() time.Time
}

func NewStore(emails []Email, events []CalendarEvent) *Store {
	s := &Store{
		emails:      append([]Email(nil), emails...),
		events:      append([]CalendarEvent(nil), events...),
		subscribers: make(map[int]func()),
		now:         time.Now,
	}
	sortEvents(s.events)
	return s
}

// Subscribe registers a change callback and returns its cancel func.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Emails returns the mailbox, newest first.
func (s *Store) Emails() []Email {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Email(nil), s.emails...)
}

// Events returns calendar events ordered by start time.
func (s *Store) Events() []CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CalendarEvent(nil), s.events...)
}

func (s *Store) AddDraft(to, subject, body string) Email {
	draft := Email{
		ID:        uuid.NewString(),
		From:      senderAddress,
		Subject:   subject,
		Body:      body,
		Read:      true,
		Labels:    []string{"Draft"},
		Timestamp: s.now(),
		IsDraft:   true,
	}
	if strings.TrimSpace(to) != "" {
		draft.Body = "To: " + to + "\n\n" + body
	}
	s.prepend(draft)
	return draft
}

func (s *Store) SendEmail(to, subject, body string) Email {
	sent := Email{
		ID:        uuid.NewString(),
		From:      senderAddress,
		Subject:   "Sent: " + subject,
		Body:      "To: " + to + "\n\n" + body,
		Read:      true,
		Labels:    []string{"Sent"},
		Timestamp: s.now(),
	}
	s.prepend(sent)
	return sent
}

// AddEvent books an event. timeInfo is a loose natural-language hint:
// "tomorrow" starts at 09:00 the next day, "next week" a week from now,
// anything else at the next full hour.
func (s *Store) AddEvent(title, timeInfo string, duration time.Duration) CalendarEvent {
	if duration <= 0 {
		duration = time.Hour
	}
	start := resolveStart(s.now(), timeInfo)
	ev := CalendarEvent{
		ID:        uuid.NewString(),
		Title:     title,
		Start:     start,
		End:       start.Add(duration),
		Attendees: []string{},
	}

	s.mu.Lock()
	s.events = append(s.events, ev)
	sortEvents(s.events)
	s.mu.Unlock()
	s.notify()
	return ev
}

func (s *Store) prepend(e Email) {
	s.mu.Lock()
	s.emails = append([]Email{e}, s.emails...)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	s.mu.RLock()
	subs := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

func resolveStart(now time.Time, timeInfo string) time.Time {
	hint := strings.ToLower(timeInfo)
	switch {
	case strings.Contains(hint, "tomorrow"):
		d := now.AddDate(0, 0, 1)
		return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, d.Location())
	case strings.Contains(hint, "next week"):
		return now.AddDate(0, 0, 7)
	default:
		return now.Truncate(time.Hour).Add(time.Hour)
	}
}

func sortEvents(events []CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
