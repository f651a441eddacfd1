package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/woojubb/robota-go/core"
)

// InMemoryStore is a process-local Store backed by a map. Values are copied
// shallowly on the way in and out so callers cannot mutate stored state.
//
// Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]map[string]any)}
}

// Save writes a shallow copy of value under key.
func (s *InMemoryStore) Save(ctx context.Context, key string, value map[string]any) error {
	cp := make(map[string]any, len(value))
	for k, v := range value {
		cp[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cp
	return nil
}

// Load returns a shallow copy of the value stored under key.
func (s *InMemoryStore) Load(ctx context.Context, key string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, &core.StorageError{Op: "load", Key: key, Err: core.ErrNotFound}
	}
	cp := make(map[string]any, len(value))
	for k, v := range value {
		cp[k] = v
	}
	return cp, nil
}

// List returns all keys in lexical order.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the value under key.
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Clear removes every stored value.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]map[string]any)
	return nil
}
