package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrSessionActive = errors.New("another session is still live")
)

// Manager holds the single live session and a short history of ended ones.
type Manager struct {
	mu        sync.RWMutex
	active    *Session
	ended     map[string]*Session
	retention time.Duration
	now       func() time.Time
	onEnd     func(Snapshot)
}

func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &Manager{
		ended:     make(map[string]*Session),
		retention: retention,
		now:       time.Now,
	}
}

func (m *Manager) SetEndHook(hook func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = hook
}

// Begin registers a new session. It fails while the previous one is still live.
func (m *Manager) Begin() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.Live() {
		return nil, ErrSessionActive
	}
	if m.active != nil {
		m.ended[m.active.ID] = m.active
	}
	s := New(m.now())
	m.active = s
	return s, nil
}

// Active returns the current session, live or not, or nil.
func (m *Manager) Active() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) Get(sessionID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active != nil && m.active.ID == sessionID {
		return m.active.Snapshot(), nil
	}
	s, ok := m.ended[sessionID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.Snapshot(), nil
}

// End marks the session closed and fires the end hook once.
func (m *Manager) End(s *Session, reason string) Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.markEnded(m.now(), reason)
	snap := s.Snapshot()

	m.mu.Lock()
	hook := m.onEnd
	m.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
	return snap
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active != nil && m.active.Live() {
		return 1
	}
	return 0
}

// Recent lists ended sessions still inside the retention window.
func (m *Manager) Recent() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.ended)+1)
	for _, s := range m.ended {
		out = append(out, s.Snapshot())
	}
	if m.active != nil && !m.active.Live() {
		out = append(out, m.active.Snapshot())
	}
	return out
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pruneEnded()
			}
		}
	}()
}

func (m *Manager) pruneEnded() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.ended {
		snap := s.Snapshot()
		if snap.EndedAt.IsZero() || now.Sub(snap.EndedAt) < m.retention {
			continue
		}
		delete(m.ended, id)
	}
}
