package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-keypool-service/internal/i18n"
	"github.com/tinywideclouds/go-keypool-service/internal/storage"
)

const defaultMetricsNamespace = "keypool"

// Config defines the *single*, authoritative configuration for the key pool service.
// It is created in two stages:
// 1. Loaded from YAML (see NewConfigFromYaml).
// 2. Updated with environment variables (see UpdateConfigWithEnvOverrides).
type Config struct {
	RunMode        string
	HTTPListenAddr string
	LogLevel       string
	// Language selects the chat message catalog.
	Language string
	// Timezone is the IANA zone chat screens show timestamps in; empty means local time.
	Timezone string
	// Operators is the allow-list of operator ids.
	Operators []string

	Store     storage.Config
	RateLimit RateLimitConfig
	Metrics   MetricsConfig

	// CorsConfig is the processed, ready-to-use middleware config.
	CorsConfig middleware.CorsConfig

	// JWTSecret is populated from the "JWT_SECRET" env var.
	JWTSecret string
}

// RateLimitConfig bounds requests per operator.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// LoadDotEnv loads variables from the first existing file in paths (".env"
// when none are given). Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// ApplyEnvOverrides applies environment variables on top of cfg.
func ApplyEnvOverrides(cfg *Config, logger *slog.Logger) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, target *string) {
		if v := env.GetString(key, ""); v != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*target = v
		}
	}
	override("GCP_PROJECT_ID", &cfg.Store.ProjectID)
	override("KEYPOOL_STORE_BACKEND", &cfg.Store.Backend)
	override("KEYPOOL_FILE_PATH", &cfg.Store.FilePath)
	override("BOT_LANGUAGE", &cfg.Language)
	override("BOT_TIMEZONE", &cfg.Timezone)
	override("LOG_LEVEL", &cfg.LogLevel)
	override("HTTP_LISTEN_ADDR", &cfg.HTTPListenAddr)

	// ADMIN_ID is the single-operator form older .env files carry
	for _, key := range []string{"ADMIN_IDS", "ADMIN_ID"} {
		if ids := env.GetString(key, ""); ids != "" {
			logger.Debug("Merging config value", "key", key, "source", "env")
			cfg.Operators = mergeOperators(cfg.Operators, strings.Split(ids, ","))
		}
	}

	cfg.RateLimit.PerSecond = env.GetFloat64("RATE_LIMIT_PER_SEC", cfg.RateLimit.PerSecond)
	cfg.RateLimit.Burst = env.GetInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.Metrics.Enabled = env.GetBool("METRICS_ENABLED", cfg.Metrics.Enabled)

	// JWT Secret is exclusively environment-sourced
	if jwtSecret := env.GetString("JWT_SECRET", ""); jwtSecret != "" {
		logger.Debug("Loaded config value", "key", "JWT_SECRET", "source", "env")
		cfg.JWTSecret = jwtSecret
	}
}

// UpdateConfigWithEnvOverrides takes the base configuration (created from YAML)
// and completes it by applying environment variables and final validation.
// This creates the final "Stage 2" runtime configuration.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	ApplyEnvOverrides(cfg, logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Final config validation failed", "error", err)
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is not set or is empty"))
	}
	if len(c.Operators) == 0 {
		errs = append(errs, errors.New("no operators configured: set operators in YAML, ADMIN_IDS or ADMIN_ID"))
	}
	switch c.Store.Backend {
	case "", storage.BackendFile, storage.BackendMemory:
	case storage.BackendFirestore:
		if c.Store.ProjectID == "" {
			errs = append(errs, errors.New("firestore store requires GCP_PROJECT_ID or store.project_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Language != "" && !i18n.IsSupported(c.Language) {
		errs = append(errs, fmt.Errorf("unsupported language %q, expected one of %v", c.Language, i18n.Supported()))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func mergeOperators(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	merged := make([]string, 0, len(existing)+len(extra))
	for _, id := range append(append([]string(nil), existing...), extra...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged
}
