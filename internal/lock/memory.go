package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker in process memory.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]Lease
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryLocker creates a MemoryLocker with DefaultTTL.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]Lease),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

func (m *MemoryLocker) Acquire(_ context.Context, key, owner string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().Unix()
	if existing, ok := m.leases[key]; ok {
		if existing.ExpiresAt >= now && existing.Owner != owner {
			return nil, ErrHeld
		}
	}

	lease := Lease{Key: key, Owner: owner, ExpiresAt: now + int64(m.ttl.Seconds())}
	m.leases[key] = lease
	return &lease, nil
}

func (m *MemoryLocker) Release(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[key]
	if !ok || existing.Owner != owner {
		return ErrNotHeld
	}
	delete(m.leases, key)
	return nil
}
