package services

import "sync"

// SessionMirror is the single-slot external key/value store used to carry a
// session pointer across restarts. It is best effort everywhere: a failing
// or absent mirror degrades the feature silently, it never fails auth.
type SessionMirror interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryMirror is the in-memory default. It survives for the life of the
// process only.
type MemoryMirror struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{values: make(map[string]string)}
}

func (m *MemoryMirror) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryMirror) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryMirror) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// NoopMirror models environments with no persistent store at all.
type NoopMirror struct{}

func (NoopMirror) Get(string) (string, bool, error) { return "", false, nil }
func (NoopMirror) Set(string, string) error         { return nil }
func (NoopMirror) Delete(string) error              { return nil }
