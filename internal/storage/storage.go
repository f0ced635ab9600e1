package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists under a key.
var ErrNotFound = errors.New("key not found")

// Backend defines the key-value primitive the collection store is built on.
// Values are opaque byte payloads.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Storage wraps a Backend with key namespacing.
type Storage struct {
	backend Backend
	prefix  string
}

// NewStorage constructs a Storage wrapper for the provided backend.
// Every key is prefixed with prefix before it reaches the backend.
func NewStorage(backend Backend, prefix string) *Storage {
	return &Storage{backend: backend, prefix: prefix}
}

// Get reads the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	return s.backend.Get(ctx, s.prefix+key)
}

// Put replaces the value stored under key.
func (s *Storage) Put(ctx context.Context, key string, value []byte) error {
	return s.backend.Put(ctx, s.prefix+key, value)
}

// Close closes the underlying backend.
func (s *Storage) Close() error {
	return s.backend.Close()
}
