package storage

import "sync"

// MemoryTier is the ephemeral tier: values live as long as the process.
type MemoryTier struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{values: map[string]string{}}
}

func (m *MemoryTier) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryTier) Set(key string, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryTier) Delete(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Clear drops every value, as closing a browser tab would.
func (m *MemoryTier) Clear() {
	m.mu.Lock()
	m.values = map[string]string{}
	m.mu.Unlock()
}
