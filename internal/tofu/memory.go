package tofu

import (
	"context"
	"sync"
)

// MemoryBackend is a Backend that keeps everything in memory. It is used
// for ephemeral sessions and in tests.
type MemoryBackend struct {
	mu         sync.Mutex
	pins       map[string]Pin
	identities map[string]Identity
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		pins:       make(map[string]Pin),
		identities: make(map[string]Identity),
	}
}

// LoadPins implements Backend.
func (m *MemoryBackend) LoadPins(_ context.Context) ([]Pin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Pin, 0, len(m.pins))
	for _, p := range m.pins {
		out = append(out, p)
	}
	return out, nil
}

// SavePin implements Backend.
func (m *MemoryBackend) SavePin(_ context.Context, pin Pin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[pinKey(pin.Host, pin.Port)] = pin
	return nil
}

// DeletePin implements Backend.
func (m *MemoryBackend) DeletePin(_ context.Context, host string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, pinKey(host, port))
	return nil
}

// LoadIdentities implements Backend.
func (m *MemoryBackend) LoadIdentities(_ context.Context) ([]Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Identity, 0, len(m.identities))
	for _, id := range m.identities {
		out = append(out, id)
	}
	return out, nil
}

// SaveIdentity implements Backend.
func (m *MemoryBackend) SaveIdentity(_ context.Context, identity Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
	return nil
}

// DeleteIdentity implements Backend.
func (m *MemoryBackend) DeleteIdentity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, id)
	return nil
}
