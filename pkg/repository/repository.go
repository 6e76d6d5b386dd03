// Package repository defines the named-blob repository the server serves
// files from.
//
// The server core treats the repository as read-only: blobs are looked up
// by name and exposed as a size plus a byte stream. How blobs get into the
// repository is outside the protocol.
package repository

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the requested blob name is absent.
// The session answers it with a text error line and continues.
var ErrNotFound = errors.New("blob not found")

// Repository provides named blobs with a known size.
//
// Implementations must be safe for concurrent use; every session goroutine
// shares one repository.
type Repository interface {
	// List returns all blob names, sorted.
	List(ctx context.Context) ([]string, error)

	// Stat returns the size in bytes of the named blob.
	// Returns ErrNotFound if the name is absent.
	Stat(ctx context.Context, name string) (int64, error)

	// Open returns a reader over the named blob's content.
	// The caller must close it. Returns ErrNotFound if the name is absent.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
