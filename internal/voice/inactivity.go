package voice

import (
	"context"
	"log"
	"time"
)

const (
	DefaultInactivityPeriod    = time.Second
	DefaultInactivityThreshold = 15 * time.Second

	CheckInPrompt = "The user has been quiet for a while. Gently ask: 'Are you still with me?' or 'Is there anything else I can help with?' DO NOT hang up."
)

type monitorState interface {
	Live() bool
	Touch(now time.Time)
	IdleFor(now time.Time) time.Duration
	TryWarn() bool
}

// TextSender is the subset of Transport used for directives.
type TextSender interface {
	SendText(ctx context.Context, text string, turnComplete bool) error
}

// InactivityMonitor nudges the model to check in once per silence episode.
// It never ends the session.
type InactivityMonitor struct {
	state     monitorState
	sender    TextSender
	speaking  func() bool
	period    time.Duration
	threshold time.Duration
	now       func() time.Time

	OnCheckIn func()
}

func NewInactivityMonitor(state monitorState, sender TextSender, speaking func() bool, period, threshold time.Duration) *InactivityMonitor {
	if period <= 0 {
		period = DefaultInactivityPeriod
	}
	if threshold <= 0 {
		threshold = DefaultInactivityThreshold
	}
	if speaking == nil {
		speaking = func() bool { return false }
	}
	return &InactivityMonitor{
		state:     state,
		sender:    sender,
		speaking:  speaking,
		period:    period,
		threshold: threshold,
		now:       time.Now,
	}
}

func (m *InactivityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one evaluation and reports whether a check-in was sent.
func (m *InactivityMonitor) Check(ctx context.Context) bool {
	if !m.state.Live() {
		return false
	}
	now := m.now()
	if m.speaking() {
		m.state.Touch(now)
		return false
	}
	if m.state.IdleFor(now) <= m.threshold {
		return false
	}
	if !m.state.TryWarn() {
		return false
	}
	if m.OnCheckIn != nil {
		m.OnCheckIn()
	}
	if err := m.sender.SendText(ctx, CheckInPrompt, true); err != nil {
		log.Printf("voice: inactivity check-in not sent: %v", err)
	}
	return true
}
