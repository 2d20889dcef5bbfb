package cache

import (
	"context"
	"sync"

	"trade_core/internal/models"
)

// Memory is the in-process cache used when no redis address is
// configured, and in tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string]models.InstanceSnapshot
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]models.InstanceSnapshot)}
}

func (m *Memory) Put(_ context.Context, id string, snap models.InstanceSnapshot) error {
	m.mu.Lock()
	m.data[id] = snap
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (models.InstanceSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.data[id]
	return snap, ok, nil
}

func (m *Memory) Evict(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}
