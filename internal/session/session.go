package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is one connection attempt. Its guard flag is raised on creation and
// lowered exactly once on teardown; everything else observes it.
type Session struct {
	ID        string
	CreatedAt time.Time

	live         atomic.Bool
	muted        atomic.Bool
	warned       atomic.Bool
	lastActivity atomic.Int64

	mu        sync.RWMutex
	state     State
	endedAt   time.Time
	endReason string
}

func New(now time.Time) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
		state:     StateIdle,
	}
	s.live.Store(true)
	s.lastActivity.Store(now.UnixNano())
	return s
}

func (s *Session) Live() bool { return s.live.Load() }

// Revoke lowers the guard. Only the first caller gets true.
func (s *Session) Revoke() bool {
	return s.live.CompareAndSwap(true, false)
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Session) markEnded(now time.Time, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	if s.endedAt.IsZero() {
		s.endedAt = now.UTC()
		s.endReason = reason
	}
}

func (s *Session) Muted() bool { return s.muted.Load() }

func (s *Session) SetMuted(v bool) { s.muted.Store(v) }

// Touch records user activity and clears any pending check-in warning.
func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
	s.warned.Store(false)
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IdleFor is the time elapsed since the last recorded activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// TryWarn sets the warned flag and reports whether it was previously clear.
func (s *Session) TryWarn() bool {
	return s.warned.CompareAndSwap(false, true)
}

func (s *Session) Warned() bool { return s.warned.Load() }

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:             s.ID,
		State:          s.state,
		Muted:          s.muted.Load(),
		Warned:         s.warned.Load(),
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivity().UTC(),
		EndedAt:        s.endedAt,
		EndReason:      s.endReason,
	}
}
