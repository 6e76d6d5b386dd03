// Package memory implements an in-memory blob repository for tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/filedepot/filedepot/pkg/repository"
)

// Store holds blobs in a map. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put adds or replaces a blob. Content is copied.
func (s *Store) Put(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = append([]byte(nil), content...)
}

// List returns all blob names, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stat returns the size of the named blob.
func (s *Store) Stat(ctx context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[name]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return int64(len(content)), nil
}

// Open returns a reader over the named blob.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
