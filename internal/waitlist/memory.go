package waitlist

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps signups in process memory, keyed by email.
type MemoryStore struct {
	mu      sync.RWMutex
	signups map[string]Signup
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signups: make(map[string]Signup)}
}

func (m *MemoryStore) Add(_ context.Context, s Signup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signups[s.Email]; ok {
		return ErrAlreadyJoined
	}
	m.signups[s.Email] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.signups, email)
	return nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signups), nil
}
