// Package middleware provides HTTP middleware for the swap service.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/apetweet-labs/swap_layer/internal/errors"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

// TokenVerifier validates a bearer token and returns the user ID it was
// minted for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthMiddleware authenticates requests with custody bearer tokens.
type AuthMiddleware struct {
	verifier  TokenVerifier
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates an authentication middleware. Requests to any
// skipPaths entry pass through unauthenticated.
func NewAuthMiddleware(verifier TokenVerifier, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{verifier: verifier, log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		userID, err := m.verifier.Verify(parts[1])
		if err != nil {
			m.log.WithContext(r.Context()).WithError(err).Warnf("token verification failed")
			m.respondError(w, r, err)
			return
		}

		ctx := logger.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("authentication failed", err)
	}

	writeServiceError(w, svcErr)

	m.log.WithContext(r.Context()).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": svcErr.HTTPStatus,
	}).Warnf("authentication failed")
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(ctx context.Context) string {
	return logger.GetUserID(ctx)
}
