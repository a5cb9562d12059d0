package storage

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a thread-safe in-memory implementation of Store.
// Contents do not survive a restart; use it for development and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewInMemoryStore creates an empty in-memory blob store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		blobs: make(map[string][]byte),
	}
}

// Put stores a copy of data to prevent external modifications
func (s *InMemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = bytes.Clone(data)
	return nil
}

// Get returns a copy of the stored blob
func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (s *InMemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *InMemoryStore) DeleteAll(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			delete(s.blobs, k)
		}
	}
	return nil
}

// Len returns the number of stored blobs
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
