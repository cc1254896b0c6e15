package pending

import (
	"context"
	"sync"
	"time"
)

// Memory es un Store en proceso. Cada operación es una sección crítica corta
// sin I/O.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Attempt
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Attempt)}
}

func (m *Memory) Put(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[a.StateToken]; ok {
		return ErrDuplicateToken
	}
	m.entries[a.StateToken] = a
	return nil
}

func (m *Memory) TakeIfValid(_ context.Context, stateToken string, now time.Time) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.entries[stateToken]
	if !ok {
		return Attempt{}, ErrInvalidState
	}
	delete(m.entries, stateToken)
	if a.Expired(now) {
		return Attempt{}, ErrInvalidState
	}
	return a, nil
}

func (m *Memory) SweepExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, a := range m.entries {
		if a.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}
