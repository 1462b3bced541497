package recordings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps recordings in process for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	items []Recording
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, rec Recording) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Audio = append([]byte(nil), rec.Audio...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, rec)
	return nil
}

// List returns metadata newest first.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.items) {
		limit = len(s.items)
	}
	out := make([]Recording, 0, limit)
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.items[i].Metadata())
	}
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.items {
		if r.ID == id {
			r.Audio = append([]byte(nil), r.Audio...)
			r.DurationMS = r.Duration.Milliseconds()
			r.AudioBytes = len(r.Audio)
			return r, nil
		}
	}
	return Recording{}, ErrNotFound
}

func (s *InMemoryStore) Close() error { return nil }
