// Package fsrepo implements a directory-backed blob repository.
//
// Blob names map to regular files directly under the root directory.
// Subdirectories are not served and path traversal in names is rejected.
package fsrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/repository"
)

// Store serves blobs from a single directory.
//
// Listings are cached and invalidated by an fsnotify watcher on the root
// directory. When the watcher cannot be established (platform limits,
// exhausted inotify descriptors) the store degrades to reading the
// directory on every List call.
type Store struct {
	root string

	mu      sync.Mutex
	listing []string // cached sorted names; nil means stale
	gen     uint64   // bumped by invalidate; guards against caching a stale read
	watcher *fsnotify.Watcher
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create repository dir %q: %w", dir, err)
	}

	s := &Store{root: dir}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(dir)
	}
	if err != nil {
		logger.Warn("Repository watcher unavailable, listings will not be cached",
			"dir", dir, "error", err)
		if watcher != nil {
			_ = watcher.Close()
		}
		return s, nil
	}

	s.watcher = watcher
	go s.watch()
	logger.Debug("Repository watcher started", "dir", dir)
	return s, nil
}

// watch invalidates the listing cache whenever the directory changes.
// Exits when the watcher is closed.
func (s *Store) watch() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.invalidate()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Repository watcher error", "error", err)
			s.invalidate()
		}
	}
}

// invalidate drops the cached listing so the next List re-reads the dir.
func (s *Store) invalidate() {
	s.mu.Lock()
	s.listing = nil
	s.gen++
	s.mu.Unlock()
}

// store caches a listing read under generation gen. If an invalidation
// moved the generation while the directory was being read, the listing may
// miss that change and is discarded instead of cached.
func (s *Store) store(gen uint64, names []string) {
	s.mu.Lock()
	if s.gen == gen {
		s.listing = names
	}
	s.mu.Unlock()
}

// Close stops the directory watcher. The store remains usable.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// resolve maps a blob name to a path under root, rejecting traversal.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return "", repository.ErrNotFound
	}
	return filepath.Join(s.root, name), nil
}

// List returns the sorted blob names, from cache when it is fresh.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	cached, gen := s.listing, s.gen
	s.mu.Unlock()

	// Serve from cache only while the watcher keeps it honest.
	if cached != nil && s.watcher != nil {
		return append([]string(nil), cached...), nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list repository: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	s.store(gen, names)

	return append([]string(nil), names...), nil
}

// Stat returns the size of the named blob.
func (s *Store) Stat(ctx context.Context, name string) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, repository.ErrNotFound
	}
	return info.Size(), nil
}

// Open returns a reader over the named blob.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, repository.ErrNotFound
	}

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, repository.ErrNotFound
	}
	return f, nil
}
