// Package auth provides JWT-based principal extraction for proxylink.
// Tokens are HS256-signed with a shared secret supplied out-of-band;
// callers without a token proceed as the anonymous principal.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/proxylink-dev/proxylink/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// principalKey is the context key for the resolved principal.
const principalKey contextKey = "principal"

// RoleAdmin marks operators who may rotate keys and read any access log.
const RoleAdmin = "admin"

// Claims is the JWT claims structure for principal tokens. Subject is
// the principal id; OrgID scopes organization-visibility checks.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Verifier parses and validates bearer tokens.
type Verifier struct {
	secret []byte
	// enabled=false turns every request anonymous (local development).
	enabled bool
}

// NewVerifier creates a token verifier. With enabled=false all requests
// resolve to the anonymous principal and tokens are ignored.
func NewVerifier(secret string, enabled bool) *Verifier {
	return &Verifier{secret: []byte(secret), enabled: enabled}
}

// Resolve turns a raw bearer token into a principal. With verification
// disabled every request runs as a local admin; with it enabled an
// absent token is anonymous and a bad token is an error.
func (v *Verifier) Resolve(raw string) (models.Principal, error) {
	if !v.enabled {
		return models.Principal{ID: "local", OrgID: "local", Admin: true}, nil
	}
	if raw == "" {
		return models.AnonymousPrincipal(), nil
	}
	return v.Principal(raw)
}

// Principal validates a raw bearer token and returns the principal it
// represents.
func (v *Verifier) Principal(raw string) (models.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return models.Principal{}, fmt.Errorf("invalid token: missing subject")
	}

	return models.Principal{
		ID:    claims.Subject,
		OrgID: claims.OrgID,
		Admin: claims.Role == RoleAdmin,
	}, nil
}

// Sign issues a token for a principal. Used by tests and by operators
// minting service tokens.
func (v *Verifier) Sign(p models.Principal) (string, error) {
	role := ""
	if p.Admin {
		role = RoleAdmin
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID},
		OrgID:            p.OrgID,
		Role:             role,
	})
	return token.SignedString(v.secret)
}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal injected by the
// middleware. Absent means anonymous.
func PrincipalFromContext(ctx context.Context) models.Principal {
	if p, ok := ctx.Value(principalKey).(models.Principal); ok {
		return p
	}
	return models.AnonymousPrincipal()
}

// BearerToken extracts the token from an Authorization header value.
// Returns "" when the header is absent or not a bearer scheme.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
