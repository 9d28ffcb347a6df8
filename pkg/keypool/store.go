// Package keypool contains the public domain models, the rotation engine and the
// persistence contract for the key pool service.
package keypool

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an operation names a record absent from the pool.
	ErrNotFound = errors.New("key not found")
	// ErrNoActiveKeys is returned when an operation needs an active record and none exists.
	ErrNoActiveKeys = errors.New("no active keys")
	// ErrKeyExhausted is returned when an operator selects an exhausted record as current.
	ErrKeyExhausted = errors.New("key is exhausted")
	// ErrDuplicateName is returned when adding a record whose name is already taken.
	ErrDuplicateName = errors.New("key name already exists")
	// ErrPersistence wraps every failure to load or save the pool.
	ErrPersistence = errors.New("key pool persistence failure")
)

// Store defines the public interface for pool persistence.
// Any component that can load and save the ordered pool (in-memory, file, Firestore)
// must implement this interface.
type Store interface {
	// Load returns the pool in rotation order. A missing or unreadable backing
	// document yields an empty pool and no error; only I/O faults are returned.
	Load(ctx context.Context) (Pool, error)

	// Save replaces the stored pool. Implementations must not reorder records.
	Save(ctx context.Context, pool Pool) error
}
