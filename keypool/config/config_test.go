package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-keypool-service/keypool/config"
)

// Helper function to create a temporary YAML config file for tests.
func createTempYAML(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)

	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	return tmpfile.Name()
}

func TestLoadFromFile(t *testing.T) {
	logger := newTestLogger()
	baseYAML := `
run_mode: "local"
http_listen_addr: ":8081"
operators: ["111"]
store:
  backend: "file"
  file_path: "yaml-keys.json"
cors:
  allowed_origins:
    - "http://yaml-origin.com"
`

	t.Run("Success - Loads from YAML and Env Vars", func(t *testing.T) {
		// Arrange
		clearEnv(t)
		yamlPath := createTempYAML(t, baseYAML)
		t.Setenv("KEYPOOL_FILE_PATH", "/data/keys.json")
		t.Setenv("JWT_SECRET", "my-super-secret-jwt-key")

		// Act
		cfg, err := config.LoadFromFile(yamlPath, logger)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "local", cfg.RunMode)
		assert.Equal(t, ":8081", cfg.HTTPListenAddr)
		assert.Equal(t, "/data/keys.json", cfg.Store.FilePath)
		assert.Equal(t, "my-super-secret-jwt-key", cfg.JWTSecret)
		assert.Equal(t, []string{"http://yaml-origin.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleDefault, cfg.CorsConfig.Role)
	})

	t.Run("Failure - Missing required JWT_SECRET", func(t *testing.T) {
		clearEnv(t)
		yamlPath := createTempYAML(t, baseYAML)

		cfg, err := config.LoadFromFile(yamlPath, logger)

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "JWT_SECRET environment variable is not set or is empty")
	})

	t.Run("Success - base load does not need the secret", func(t *testing.T) {
		clearEnv(t)
		yamlPath := createTempYAML(t, baseYAML)

		cfg, err := config.LoadBaseFromFile(yamlPath, logger)

		require.NoError(t, err)
		assert.Equal(t, "yaml-keys.json", cfg.Store.FilePath)
	})

	t.Run("Failure - Missing config file", func(t *testing.T) {
		cfg, err := config.LoadFromFile("non-existent-file.yaml", logger)

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("Failure - Malformed YAML", func(t *testing.T) {
		malformedYAML := `
run_mode: "local"
store: "yaml-project"
  http_listen_addr: ":8081" # <-- Bad indentation
`
		yamlPath := createTempYAML(t, malformedYAML)
		t.Setenv("JWT_SECRET", "my-super-secret-jwt-key")

		cfg, err := config.LoadFromFile(yamlPath, logger)

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to parse YAML config")
	})
}
