package session

import (
	"context"
	"maps"
	"sync"
)

// Memory is a Store which keeps environments in memory.
type Memory struct {
	mu   sync.Mutex
	vars map[string]map[string]string
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{vars: make(map[string]map[string]string)}
}

func (m *Memory) Load(ctx context.Context, id string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vars[id]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(v), nil
}

func (m *Memory) Save(ctx context.Context, id string, vars map[string]string) error {
	m.mu.Lock()
	m.vars[id] = maps.Clone(vars)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.vars, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
