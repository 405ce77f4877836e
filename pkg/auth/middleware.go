package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// Middleware resolves principals from bearer tokens and injects them
// into the request context.
type Middleware struct {
	verifier *Verifier
	logger   *zap.Logger
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(verifier *Verifier, logger *zap.Logger) *Middleware {
	return &Middleware{verifier: verifier, logger: logger}
}

// Optional resolves the principal when a token is present and proceeds
// anonymously otherwise. A present-but-invalid token is a 401: silently
// downgrading a bad token to anonymous would mask credential problems.
func (m *Middleware) Optional(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r.Header.Get("Authorization"))

		principal, err := m.verifier.Resolve(raw)
		if err != nil {
			m.logger.Debug("Rejected bearer token", zap.Error(err))
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	}
}

// Require rejects anonymous requests.
func (m *Middleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return m.Optional(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()).Anonymous {
			http.Error(w, `{"error":"authentication_required"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

// RequireAdmin rejects everything but admin principals.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.Optional(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).Admin {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	})
}
