package main

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinywideclouds/go-keypool-service/internal/auth"
	"github.com/tinywideclouds/go-keypool-service/internal/pool"
	"github.com/tinywideclouds/go-keypool-service/internal/storage"
	"github.com/tinywideclouds/go-keypool-service/keypool"
	"github.com/tinywideclouds/go-keypool-service/keypool/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	// --- 1. Load Configuration ---
	if err := config.LoadDotEnv(); err != nil {
		bootLogger.Warn("Failed to load .env file", "err", err)
	}

	yamlCfg, err := config.ParseYaml(configFile)
	if err != nil {
		fatal(bootLogger, "Failed to unmarshal embedded yaml config", err)
	}

	baseCfg, err := config.NewConfigFromYaml(yamlCfg, bootLogger)
	if err != nil {
		fatal(bootLogger, "Failed to build base configuration from YAML", err)
	}

	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, bootLogger)
	if err != nil {
		fatal(bootLogger, "Failed to finalize configuration with environment overrides", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("Configuration loaded", "run_mode", cfg.RunMode, "operators", len(cfg.Operators), "backend", cfg.Store.Backend)

	// --- 2. Dependencies ---
	store, closeStore, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		fatal(logger, "Failed to initialize key pool store", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close key pool store", "err", err)
		}
	}()

	authorizer := auth.NewAuthorizer(cfg.Operators)
	authMiddleware := auth.NewOperatorAuthMiddleware(auth.MiddlewareConfig{
		Secret:     cfg.JWTSecret,
		Authorizer: authorizer,
		Limiter:    auth.NewOperatorLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Logger:     logger,
	})

	// --- 3. Create Service Instance ---
	service, err := keypool.New(cfg, store, authMiddleware, authorizer, logger)
	if err != nil {
		fatal(logger, "Failed to create key pool service", err)
	}

	// Repair a pool left inconsistent by an earlier run before serving it.
	if changed, err := service.Pool.Normalize(ctx); err != nil {
		logger.Warn("Failed to normalize key pool on startup", "err", err)
	} else if changed {
		logger.Info("Key pool normalized on startup")
	}
	logStartupStats(ctx, service.Pool, logger)

	// --- 4. Start Service and Handle Shutdown ---
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "address", cfg.HTTPListenAddr)
		if startErr := service.Start(); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			errChan <- startErr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		fatal(logger, "Service failed", err)
	case sig := <-quit:
		logger.Info("OS signal received, initiating shutdown.", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if shutdownErr := service.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("Service shutdown failed", "err", shutdownErr)
		} else {
			logger.Info("Service shutdown complete")
		}
	}
}

func logStartupStats(ctx context.Context, svc *pool.Service, logger *slog.Logger) {
	stats, err := svc.Stats(ctx)
	if err != nil {
		logger.Warn("Failed to read key pool stats", "err", err)
		return
	}
	logger.Info("Key pool loaded", "total", stats.Total, "active", stats.Active, "exhausted", stats.Exhausted)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
