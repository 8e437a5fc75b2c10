// Package securestore provides the secure credential store used for the
// master key, the per-user salt and credential hashes.
package securestore

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no value exists for the key.
var ErrNotFound = errors.New("securestore: item not found")

// Store is a keyed store of secret byte values.
type Store interface {
	// Save writes data under key, replacing any previous value.
	Save(key string, data []byte) error
	// Load returns the value under key or ErrNotFound.
	Load(key string) ([]byte, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// SaveString stores a string value.
func SaveString(s Store, key, value string) error {
	return s.Save(key, []byte(value))
}

// LoadString loads a string value.
func LoadString(s Store, key string) (string, error) {
	b, err := s.Load(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Memory is an in-process Store. The zero value is ready to use.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Len reports the number of stored items.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
