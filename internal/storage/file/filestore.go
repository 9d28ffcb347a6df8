// Package file provides a pool store backed by a JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Store is a concrete implementation of the keypool.Store interface that keeps
// the pool as a JSON array in a single file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store for the JSON document at path.
func NewFileStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "file_store", "path", path),
	}
}

// Load reads the pool. A missing file or a document that does not parse as a
// record list yields an empty pool; both are logged.
func (s *Store) Load(ctx context.Context) (keypool.Pool, error) {
	s.logger.Debug("Loading key pool")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Key pool file does not exist, starting with an empty pool")
			return keypool.Pool{}, nil
		}
		s.logger.Error("Failed to read key pool file", "err", err)
		return nil, fmt.Errorf("failed to read key pool file %s: %w", s.path, err)
	}

	var pool keypool.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		s.logger.Warn("Key pool file is corrupt, starting with an empty pool", "err", err)
		return keypool.Pool{}, nil
	}
	if pool == nil {
		pool = keypool.Pool{}
	}

	s.logger.Debug("Successfully loaded key pool", "keys", len(pool))
	return pool, nil
}

// Save writes the pool to a temporary file next to the target and renames it
// into place, so readers never observe a half-written document.
func (s *Store) Save(ctx context.Context, pool keypool.Pool) error {
	if pool == nil {
		pool = keypool.Pool{}
	}
	data, err := json.MarshalIndent(pool, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key pool: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.logger.Error("Failed to create key pool directory", "err", err)
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		s.logger.Error("Failed to create temporary key pool file", "err", err)
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		s.logger.Error("Failed to write key pool file", "err", err)
		return fmt.Errorf("failed to write key pool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key pool file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		s.logger.Error("Failed to replace key pool file", "err", err)
		return fmt.Errorf("failed to replace key pool file %s: %w", s.path, err)
	}

	s.logger.Debug("Successfully saved key pool", "keys", len(pool))
	return nil
}
