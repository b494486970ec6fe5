package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry keeps flags in process. It is only suitable when a single
// auth and directory process share it, as in tests and local runs.
type MemoryRegistry struct {
	mu      sync.Mutex
	expires map[int64]time.Time
	now     func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{expires: make(map[int64]time.Time), now: time.Now}
}

func (m *MemoryRegistry) Activate(_ context.Context, accountID int64, ttl time.Duration) error {
	m.mu.Lock()
	m.expires[accountID] = m.now().Add(ttl)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRegistry) Active(_ context.Context, accountID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.expires[accountID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.expires, accountID)
		return false, nil
	}
	return true, nil
}

func (m *MemoryRegistry) Revoke(_ context.Context, accountID int64) error {
	m.mu.Lock()
	delete(m.expires, accountID)
	m.mu.Unlock()
	return nil
}
