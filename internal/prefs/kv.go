package prefs

import "sync"

// KV is a flat, synchronous key-value backend. The bool result of the getters
// reports whether the key was present.
type KV interface {
	GetString(key string) (string, bool, error)
	SetString(key, value string) error
	GetBool(key string) (bool, bool, error)
	SetBool(key string, value bool) error
}

// MemoryKV keeps preferences in process. It does not survive restarts.
type MemoryKV struct {
	mu      sync.RWMutex
	strings map[string]string
	bools   map[string]bool
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{strings: make(map[string]string), bools: make(map[string]bool)}
}

func (m *MemoryKV) GetString(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *MemoryKV) SetString(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *MemoryKV) GetBool(key string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.bools[key]
	return v, ok, nil
}

func (m *MemoryKV) SetBool(key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bools[key] = value
	return nil
}
