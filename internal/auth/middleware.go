// Package auth wires bearer-token checks into the operator API.
package auth

import (
	"net/http"

	authlib "github.com/xmasacrex/club-rpg/internal/platform/auth"
)

// Config mirrors the shared auth config.
type Config = authlib.Config

// Claims mirrors the shared auth claims.
type Claims = authlib.Claims

// Middleware enforces bearer-token authentication on every route except the
// health and metrics endpoints.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{inner: authlib.NewMiddleware(cfg, Public)}
}

// Public reports whether the request targets an unauthenticated endpoint.
func Public(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	}
	return false
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}

// RequireScope rejects requests whose claims lack scope. Requests that
// bypassed authentication have no claims and are rejected too.
func RequireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authlib.FromContext(r.Context())
		if !ok || !claims.HasScope(scope) {
			http.Error(w, "insufficient scope", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
