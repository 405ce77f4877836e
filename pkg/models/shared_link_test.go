package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
)

func intPtr(n int) *int { return &n }

func TestSharedLink_TerminalState(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name string
		link SharedLink
		want apperrors.LinkKind
	}{
		{"fresh unbounded", SharedLink{}, ""},
		{"bounded but unused", SharedLink{ExpiresAt: &future, MaxUses: intPtr(3)}, ""},
		{"expired", SharedLink{ExpiresAt: &past}, apperrors.LinkExpired},
		{"expires exactly now", SharedLink{ExpiresAt: &now}, apperrors.LinkExpired},
		{"revoked", SharedLink{Revoked: true}, apperrors.LinkRevoked},
		{"exhausted", SharedLink{MaxUses: intPtr(2), UseCount: 2}, apperrors.LinkExhausted},
		{"one use left", SharedLink{MaxUses: intPtr(2), UseCount: 1}, ""},
		// Priority when several conditions hold: expired > revoked > exhausted.
		{"expired and revoked", SharedLink{ExpiresAt: &past, Revoked: true}, apperrors.LinkExpired},
		{"revoked and exhausted", SharedLink{Revoked: true, MaxUses: intPtr(1), UseCount: 1}, apperrors.LinkRevoked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.link.TerminalState(now))
			assert.Equal(t, tc.want == "", tc.link.Usable(now))
		})
	}
}

func TestSharedLink_AllowsPrincipal(t *testing.T) {
	public := SharedLink{Visibility: LinkPublic}
	assert.True(t, public.AllowsPrincipal(Principal{ID: "alice"}))
	assert.True(t, public.AllowsPrincipal(AnonymousPrincipal()))

	restricted := SharedLink{Visibility: LinkRestricted, AllowedPrincipals: []string{"alice", "bob"}}
	assert.True(t, restricted.AllowsPrincipal(Principal{ID: "alice"}))
	assert.False(t, restricted.AllowsPrincipal(Principal{ID: "mallory"}))
	assert.False(t, restricted.AllowsPrincipal(AnonymousPrincipal()))
}
