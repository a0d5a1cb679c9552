// Package memory provides an in-process Storage used for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/storage"
)

const backendName = "memory"

// Store keeps items in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	items map[string]models.Item
}

// New constructs an empty Store.
func New() *Store {
	return &Store{items: make(map[string]models.Item)}
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Insert stores a deep copy of item, replacing any previous value.
func (s *Store) Insert(_ context.Context, item models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.Name()] = item.Clone()
	return nil
}

// Get returns a copy of the stored item.
func (s *Store) Get(_ context.Context, name string) (models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[name]
	if !ok {
		return models.Item{}, storage.NotFound(backendName, name)
	}
	return item.Clone(), nil
}

// Len reports how many items are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Names lists the stored keys in no particular order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for name := range s.items {
		out = append(out, name)
	}
	return out
}

// BackendName returns "memory".
func (s *Store) BackendName() string { return backendName }

// Close does nothing.
func (s *Store) Close() error { return nil }
