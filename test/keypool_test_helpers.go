// Package test holds helpers for end-to-end tests of the key pool service.
package test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-keypool-service/internal/auth"
	fs "github.com/tinywideclouds/go-keypool-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-keypool-service/internal/storage/inmemory"
	"github.com/tinywideclouds/go-keypool-service/keypool"
	"github.com/tinywideclouds/go-keypool-service/keypool/config"
	keypoolpkg "github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Options tunes the assembled test server.
type Options struct {
	Secret    string
	Operators []string
	Language  string
	Metrics   bool
	// Seed pre-populates the in-memory store.
	Seed []keypoolpkg.KeyRecord
}

func newTestConfig(opts Options) *config.Config {
	return &config.Config{
		RunMode:        "test",
		HTTPListenAddr: ":0",
		Language:       opts.Language,
		Operators:      opts.Operators,
		JWTSecret:      opts.Secret,
		Metrics: config.MetricsConfig{
			Enabled:   opts.Metrics,
			Namespace: "keypool",
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: []string{"*"}, // Allow all for tests
			Role:           middleware.CorsRoleDefault,
		},
	}
}

// NewTestServer creates and starts a new httptest.Server for end-to-end testing.
// It assembles the service with an in-memory store and the real operator auth middleware.
func NewTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	return newServer(t, opts, inmemory.New(opts.Seed...))
}

// NewTestFirestoreServer creates and starts a new httptest.Server for the key pool service,
// backed by a real (emulated) Firestore client.
func NewTestFirestoreServer(t *testing.T, fsClient *firestore.Client, collectionName string, opts Options) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newServer(t, opts, fs.NewFirestoreStore(fsClient, collectionName, "default", logger))
}

func newServer(t *testing.T, opts Options, store keypoolpkg.Store) *httptest.Server {
	cfg := newTestConfig(opts)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authorizer := auth.NewAuthorizer(cfg.Operators)
	authMiddleware := auth.NewOperatorAuthMiddleware(auth.MiddlewareConfig{
		Secret:     cfg.JWTSecret,
		Authorizer: authorizer,
		Logger:     logger,
	})

	service, err := keypool.New(cfg, store, authMiddleware, authorizer, logger)
	require.NoError(t, err)

	return httptest.NewServer(service.Mux())
}
