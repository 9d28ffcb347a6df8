// Package inmemory provides a thread-safe in-memory pool store.
package inmemory

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Store is a concrete, thread-safe in-memory implementation of the keypool.Store interface.
// Load and Save copy the pool so callers never share slice storage with the store.
type Store struct {
	sync.RWMutex
	pool keypool.Pool
}

// New creates a new in-memory store seeded with the given records.
func New(seed ...keypool.KeyRecord) *Store {
	return &Store{pool: keypool.Pool(seed).Clone()}
}

// Load returns a copy of the stored pool.
func (s *Store) Load(ctx context.Context) (keypool.Pool, error) {
	s.RLock()
	defer s.RUnlock()
	return s.pool.Clone(), nil
}

// Save replaces the stored pool with a copy of pool.
func (s *Store) Save(ctx context.Context, pool keypool.Pool) error {
	s.Lock()
	defer s.Unlock()
	s.pool = pool.Clone()
	return nil
}
