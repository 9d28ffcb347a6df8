package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-keypool-service/internal/storage"
)

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	RunMode        string   `yaml:"run_mode"`
	HTTPListenAddr string   `yaml:"http_listen_addr"`
	LogLevel       string   `yaml:"log_level"`
	Language       string   `yaml:"language"`
	Timezone       string   `yaml:"timezone"`
	Operators      []string `yaml:"operators"`

	Store storage.Config `yaml:"store"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`

	Cors struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
		Role           string   `yaml:"cors_role"`
	} `yaml:"cors"`
}

// ParseYaml unmarshals raw YAML bytes.
func ParseYaml(data []byte) (*YamlConfig, error) {
	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &yamlCfg, nil
}

// NewConfigFromYaml converts the raw unmarshaled data (YamlConfig) into a clean, base Config struct.
// Stage 1 complete: The Config struct now exists, but without environment overrides.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	role := middleware.CorsRoleDefault
	if baseCfg.Cors.Role != "" {
		role = middleware.CorsRole(baseCfg.Cors.Role)
	}

	cfg := &Config{
		RunMode:        baseCfg.RunMode,
		HTTPListenAddr: baseCfg.HTTPListenAddr,
		LogLevel:       baseCfg.LogLevel,
		Language:       baseCfg.Language,
		Timezone:       baseCfg.Timezone,
		Operators:      append([]string(nil), baseCfg.Operators...),
		Store:          baseCfg.Store,
		RateLimit: RateLimitConfig{
			PerSecond: baseCfg.RateLimit.PerSecond,
			Burst:     baseCfg.RateLimit.Burst,
		},
		Metrics: MetricsConfig{
			Enabled:   baseCfg.Metrics.Enabled,
			Namespace: baseCfg.Metrics.Namespace,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.Cors.AllowedOrigins,
			Role:           role,
		},
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}
	// JWTSecret is left blank here, it is only ever sourced from the environment (Stage 2)

	logger.Debug("YAML config mapping complete",
		"run_mode", cfg.RunMode,
		"http_listen_addr", cfg.HTTPListenAddr,
		"language", cfg.Language,
		"operators", len(cfg.Operators),
		"store_backend", cfg.Store.Backend,
		"cors_origins", cfg.CorsConfig.AllowedOrigins,
		"cors_role", cfg.CorsConfig.Role,
	)

	return cfg, nil
}

// LoadFromFile reads a YAML file and builds the final server configuration,
// applying environment overrides and validation.
func LoadFromFile(path string, logger *slog.Logger) (*Config, error) {
	cfg, err := LoadBaseFromFile(path, logger)
	if err != nil {
		return nil, err
	}
	return UpdateConfigWithEnvOverrides(cfg, logger)
}

// LoadBaseFromFile reads a YAML file and applies environment overrides without
// requiring the server-only secrets. Used by the admin CLI.
func LoadBaseFromFile(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("Loading config from file", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("Failed to read config file", "path", path, "err", err)
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	yamlCfg, err := ParseYaml(data)
	if err != nil {
		logger.Error("Failed to parse YAML config", "path", path, "err", err)
		return nil, err
	}

	cfg, err := NewConfigFromYaml(yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg, logger)
	return cfg, nil
}
