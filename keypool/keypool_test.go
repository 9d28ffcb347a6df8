package keypool_test

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-keypool-service/internal/chat"
	keypoolpkg "github.com/tinywideclouds/go-keypool-service/pkg/keypool"
	"github.com/tinywideclouds/go-keypool-service/test"
)

const (
	testSecret   = "integration-secret"
	testOperator = "111"
)

// createTestToken generates a valid JWT signed with the shared secret.
func createTestToken(t *testing.T, operatorID string) string {
	t.Helper()

	token, err := jwt.NewBuilder().
		Subject(operatorID).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(10 * time.Minute)).
		Build()
	require.NoError(t, err)

	signedToken, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)

	return string(signedToken)
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestKeyPoolService_Integration(t *testing.T) {
	// 1. Setup the service on an in-memory store
	server := test.NewTestServer(t, test.Options{
		Secret:    testSecret,
		Operators: []string{testOperator},
		Metrics:   true,
	})
	defer server.Close()
	token := createTestToken(t, testOperator)

	t.Run("Auth - Failure 401 without token", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/api/v1/keys", "", "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Auth - Failure 403 for unknown operator", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/api/v1/keys", createTestToken(t, "999"), "")

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Rotation - full lifecycle", func(t *testing.T) {
		// Add two keys
		resp := do(t, http.MethodPost, server.URL+"/api/v1/keys", token, `{"name":"k1","value":"v1"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp = do(t, http.MethodPost, server.URL+"/api/v1/keys", token, `{"name":"k2","value":"v2"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		// Current is the first
		resp = do(t, http.MethodGet, server.URL+"/api/v1/rotation/current", token, "")
		var current keypoolpkg.KeyRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&current))
		assert.Equal(t, "k1", current.Name)

		// Exhaust and advance
		resp = do(t, http.MethodPost, server.URL+"/api/v1/keys/k1/exhaust?advance=true", token, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(t, http.MethodGet, server.URL+"/api/v1/rotation/current", token, "")
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&current))
		assert.Equal(t, "k2", current.Name)

		// Exhaust the last one: nothing left
		do(t, http.MethodPost, server.URL+"/api/v1/keys/k2/exhaust", token, "")
		resp = do(t, http.MethodPost, server.URL+"/api/v1/rotation/next", token, "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		// Reset brings everything back
		resp = do(t, http.MethodPost, server.URL+"/api/v1/rotation/reset", token, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = do(t, http.MethodGet, server.URL+"/api/v1/stats", token, "")
		var stats keypoolpkg.Stats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Equal(t, 2, stats.Active)
		assert.Zero(t, stats.Exhausted)
	})

	t.Run("Chat - webhook drives the conversation", func(t *testing.T) {
		resp := do(t, http.MethodPost, server.URL+"/api/v1/chat/updates", token, `{"callback":"next"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var chatResp chat.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&chatResp))
		assert.Equal(t, "✅ Switched to key k2", chatResp.Notice)
	})

	t.Run("Metrics - exposed", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/metrics", "", "")
		body, _ := io.ReadAll(resp.Body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "keypool_operations_total")
	})

	t.Run("CORS - preflight allowed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/keys/k1", nil)
		req.Header.Set("Origin", "http://test-origin.com")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Less(t, resp.StatusCode, 400)
	})

	t.Run("Unknown route - 404", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/api/v1/nothing", token, "")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

}
