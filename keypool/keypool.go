// Package keypool wires the key pool service onto the shared microservice base server.
package keypool

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-keypool-service/internal/api"
	"github.com/tinywideclouds/go-keypool-service/internal/auth"
	"github.com/tinywideclouds/go-keypool-service/internal/chat"
	"github.com/tinywideclouds/go-keypool-service/internal/i18n"
	"github.com/tinywideclouds/go-keypool-service/internal/metrics"
	"github.com/tinywideclouds/go-keypool-service/internal/pool"
	"github.com/tinywideclouds/go-keypool-service/keypool/config"
	keypoolpkg "github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Wrapper embeds the BaseServer to inherit standard server functionality.
type Wrapper struct {
	*microservice.BaseServer
	Pool   *pool.Service
	logger *slog.Logger
}

// New creates and wires up the entire key pool service.
func New(
	cfg *config.Config,
	store keypoolpkg.Store,
	authMiddleware func(http.Handler) http.Handler,
	authorizer *auth.Authorizer,
	logger *slog.Logger,
) (*Wrapper, error) {
	baseServer := microservice.NewBaseServer(logger, cfg.HTTPListenAddr)

	var opts []pool.Option
	var poolMetrics *metrics.PoolMetrics
	if cfg.Metrics.Enabled {
		poolMetrics = metrics.NewPoolMetrics(cfg.Metrics.Namespace)
		opts = append(opts, pool.WithMetrics(poolMetrics))
	}
	svc := pool.New(store, logger, opts...)

	translator, err := i18n.New(cfg.Language)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	chatHandler := chat.NewHandler(svc, authorizer, translator, logger, chat.WithLocation(loc))
	logger.Info("Chat adapter configured", "language", translator.Language(), "operators", authorizer.Operators())

	apiHandler := &api.API{Pool: svc, Chat: chatHandler, Logger: logger.With("component", "api")}

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig)
	options := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(h)))
	}

	protected("GET /api/v1/keys", apiHandler.ListKeysHandler)
	protected("POST /api/v1/keys", apiHandler.AddKeyHandler)
	protected("GET /api/v1/keys/{name}", apiHandler.GetKeyHandler)
	protected("DELETE /api/v1/keys/{name}", apiHandler.DeleteKeyHandler)
	protected("POST /api/v1/keys/{name}/exhaust", apiHandler.ExhaustKeyHandler)
	protected("POST /api/v1/keys/{name}/activate", apiHandler.ActivateKeyHandler)
	protected("POST /api/v1/keys/{name}/select", apiHandler.SelectKeyHandler)
	protected("GET /api/v1/rotation/current", apiHandler.CurrentKeyHandler)
	protected("POST /api/v1/rotation/next", apiHandler.NextKeyHandler)
	protected("POST /api/v1/rotation/reset", apiHandler.ResetHandler)
	protected("GET /api/v1/stats", apiHandler.StatsHandler)
	protected("POST /api/v1/chat/updates", apiHandler.ChatUpdateHandler)

	for _, pattern := range []string{
		"OPTIONS /api/v1/keys",
		"OPTIONS /api/v1/keys/{name}",
		"OPTIONS /api/v1/keys/{name}/{action}",
		"OPTIONS /api/v1/rotation/{action}",
		"OPTIONS /api/v1/stats",
		"OPTIONS /api/v1/chat/updates",
	} {
		mux.Handle(pattern, corsMiddleware(options))
	}

	if poolMetrics != nil {
		mux.Handle("GET /metrics", poolMetrics.Handler())
	}

	return &Wrapper{
		BaseServer: baseServer,
		Pool:       svc,
		logger:     logger,
	}, nil
}

// Start runs the HTTP server and handles the readiness logic.
func (w *Wrapper) Start() error {
	errChan := make(chan error, 1)
	httpReadyChan := make(chan struct{})
	w.BaseServer.SetReadyChannel(httpReadyChan)

	go func() {
		if err := w.BaseServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("HTTP server failed", "err", err)
			errChan <- err
		}
		close(errChan)
	}()

	// Wait for EITHER the server to be ready OR for it to fail on startup
	select {
	case <-httpReadyChan:
		w.logger.Info("HTTP listener is active.")
		w.SetReady(true)
		w.logger.Info("Service is now ready.")

	case err := <-errChan:
		return err
	}

	// Wait for the server goroutine to exit (which happens on Shutdown)
	return <-errChan
}
