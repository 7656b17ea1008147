package credstore

import (
	"context"
	"sync"

	"github.com/jun/vaultgw/internal/model"
)

// MemoryBackend keeps the credential row in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	row  *model.CredentialSet
	puts int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Get(_ context.Context) (*model.CredentialSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.row == nil {
		return nil, ErrNoCredential
	}
	cs := *m.row
	return &cs, nil
}

func (m *MemoryBackend) Put(_ context.Context, cs *model.CredentialSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *cs
	m.row = &stored
	m.puts++
	return nil
}

// Puts returns how many upserts the backend has seen.
func (m *MemoryBackend) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
