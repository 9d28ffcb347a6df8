// Package storage selects and builds the configured pool store backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"

	fs "github.com/tinywideclouds/go-keypool-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-keypool-service/internal/storage/file"
	"github.com/tinywideclouds/go-keypool-service/internal/storage/inmemory"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Supported backends.
const (
	BackendFile      = "file"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config describes where the pool is persisted.
type Config struct {
	Backend    string `yaml:"backend"`
	FilePath   string `yaml:"file_path"`
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
	Document   string `yaml:"document"`
}

// Open builds the store for cfg. The returned close function releases any
// client the store holds and is never nil.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (keypool.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case BackendFile, "":
		path := cfg.FilePath
		if path == "" {
			path = "keys.json"
		}
		logger.Info("Using file key pool store", "path", path)
		return file.NewFileStore(path, logger), noop, nil

	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, noop, fmt.Errorf("firestore backend requires a project id")
		}
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Firestore client for project %s: %w", cfg.ProjectID, err)
		}
		collection, document := cfg.Collection, cfg.Document
		if collection == "" {
			collection = "key-pools"
		}
		if document == "" {
			document = "default"
		}
		logger.Info("Using Firestore key pool store", "project_id", cfg.ProjectID, "collection", collection, "document", document)
		return fs.NewFirestoreStore(client, collection, document, logger), client.Close, nil

	case BackendMemory:
		logger.Info("Using in-memory key pool store")
		return inmemory.New(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
