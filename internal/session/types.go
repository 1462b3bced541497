package session

import "time"

// State is the lifecycle position of a voice session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Guard is the read-only view of a session's liveness flag. Audio callbacks,
// timers and tool workers consult it before acting.
type Guard interface {
	Live() bool
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID             string    `json:"session_id"`
	State          State     `json:"state"`
	Muted          bool      `json:"muted"`
	Warned         bool      `json:"warned"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
	EndReason      string    `json:"end_reason,omitempty"`
}
