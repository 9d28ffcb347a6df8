package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// MiddlewareConfig configures the operator authentication middleware.
type MiddlewareConfig struct {
	// Secret is the shared HS256 signing secret.
	Secret     string
	Authorizer *Authorizer
	// Limiter is optional; nil disables rate limiting.
	Limiter *OperatorLimiter
	Logger  *slog.Logger
}

// NewOperatorAuthMiddleware verifies the bearer token, checks the subject
// against the allow-list and applies the per-operator rate limit.
func NewOperatorAuthMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger.With("component", "operator_auth")
	secret := []byte(cfg.Secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized: Missing token")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				response.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized: Invalid token format")
				return
			}

			token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, secret), jwt.WithValidate(true))
			if err != nil {
				logger.Debug("Rejected bearer token", "err", err)
				response.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
				return
			}
			operatorID := token.Subject()
			if operatorID == "" {
				response.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized: Invalid operator ID in token")
				return
			}

			if !cfg.Authorizer.IsAuthorized(operatorID) {
				logger.Warn("Operator is not on the allow-list", "operator_id", operatorID, "path", r.URL.Path)
				response.WriteJSONError(w, http.StatusForbidden, "Forbidden: Operator is not authorized")
				return
			}

			if cfg.Limiter != nil && !cfg.Limiter.Allow(operatorID) {
				logger.Warn("Operator rate limit exceeded", "operator_id", operatorID, "path", r.URL.Path)
				response.WriteJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			ctx := middleware.ContextWithUserID(r.Context(), operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
