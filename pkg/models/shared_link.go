package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
)

// LinkVisibility controls who may use a shared link.
type LinkVisibility string

const (
	// LinkPublic links are usable by any principal, including anonymous.
	LinkPublic LinkVisibility = "public"
	// LinkRestricted links are usable only by principals on the
	// AllowedPrincipals list.
	LinkRestricted LinkVisibility = "restricted"
)

func (v LinkVisibility) Valid() bool {
	return v == LinkPublic || v == LinkRestricted
}

// SharedLink grants bounded access to a connector without exposing the
// connector's credentials or identifier semantics. The ID doubles as the
// bearer token and is generated from crypto/rand.
type SharedLink struct {
	ID                string         `json:"id"`
	ConnectorID       uuid.UUID      `json:"connector_id"`
	Visibility        LinkVisibility `json:"visibility"`
	AllowedPrincipals []string       `json:"allowed_principals,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	MaxUses           *int           `json:"max_uses,omitempty"`
	UseCount          int            `json:"use_count"`
	Revoked           bool           `json:"revoked"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Usable evaluates the link usability predicate at the given instant:
// not revoked, not past expiry, and not at its use ceiling. The
// authoritative check-and-increment happens atomically in storage; this
// predicate exists for pre-checks and state reporting.
func (l *SharedLink) Usable(now time.Time) bool {
	return l.TerminalState(now) == ""
}

// TerminalState returns the link's terminal state at the given instant,
// or "" while the link is still active. When several terminal conditions
// hold at once the reported sub-kind is prioritized expired > revoked >
// exhausted; all of them are equally unusable.
func (l *SharedLink) TerminalState(now time.Time) apperrors.LinkKind {
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return apperrors.LinkExpired
	}
	if l.Revoked {
		return apperrors.LinkRevoked
	}
	if l.MaxUses != nil && l.UseCount >= *l.MaxUses {
		return apperrors.LinkExhausted
	}
	return ""
}

// AllowsPrincipal reports whether the principal may use this link.
// Public links allow everyone; restricted links require a listed,
// non-anonymous principal.
func (l *SharedLink) AllowsPrincipal(p Principal) bool {
	if l.Visibility == LinkPublic {
		return true
	}
	if p.Anonymous {
		return false
	}
	for _, id := range l.AllowedPrincipals {
		if id == p.ID {
			return true
		}
	}
	return false
}
