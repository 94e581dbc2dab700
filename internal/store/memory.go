package store

import (
	"context"
	"sync"

	"cpo/internal/models"
)

type Memory[T models.Resource] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewMemory[T models.Resource]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) Get(_ context.Context, id models.Identity) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id.Key()]
	return item, ok, nil
}

func (m *Memory[T]) List(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return out, nil
}

func (m *Memory[T]) Mutate(_ context.Context, id models.Identity, fn MutateFunc[T]) (T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := id.Key()
	cur, exists := m.items[key]
	next, err := fn(cur, exists)
	if err != nil {
		var zero T
		return zero, false, err
	}
	m.items[key] = next
	return next, !exists, nil
}

func (m *Memory[T]) Delete(_ context.Context, id models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id.Key())
	return nil
}

func (m *Memory[T]) DeleteOwnedBy(_ context.Context, owner models.PartyIdentity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, item := range m.items {
		if item.Owner().Equal(owner) {
			delete(m.items, key)
			n++
		}
	}
	return n, nil
}

// Len is used by tests and the seed tool.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
