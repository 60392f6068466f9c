// Package store persists story conversations through a small string-keyed
// KV layer: a bbolt file store for normal runs and an in-memory store for
// tests and ephemeral sessions. The JSON shapes written through it are
// fixed; see chatstore.go.
package store

import "sync"

// KV is the string-keyed byte store conversations are persisted through.
// Implementations must be safe for concurrent use because debounced saves
// fire from a timer goroutine.
type KV interface {
	// Get returns the value stored under key and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key, overwriting any previous value.
	Set(key string, value []byte) error
	// Close releases the underlying resources.
	Close() error
}

// MemoryKV keeps values in process memory. Ephemeral sessions and tests
// use it in place of the file store.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores a copy of value under key.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryKV) Close() error {
	return nil
}

// Len reports how many keys are stored. Used by tests.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
