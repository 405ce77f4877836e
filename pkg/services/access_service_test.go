package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

func policyConnector(visibility models.Visibility, ops ...models.OpClass) *models.Connector {
	return &models.Connector{
		Name:              "c",
		Kind:              models.KindHTTP,
		AllowedOperations: ops,
		OwnerID:           owner.ID,
		OwnerOrgID:        owner.OrgID,
		Visibility:        visibility,
		IsActive:          true,
	}
}

func readOp() models.Operation {
	return models.Operation{Class: models.OpRead, Method: "GET", Path: "/"}
}

func TestAccessService_DirectDispatch(t *testing.T) {
	svc := NewAccessService(zap.NewNop())
	sameOrg := models.Principal{ID: "carol", OrgID: owner.OrgID}
	otherOrg := models.Principal{ID: "dave", OrgID: "globex"}

	cases := []struct {
		name      string
		connector *models.Connector
		principal models.Principal
		op        models.Operation
		reason    apperrors.DenialReason
	}{
		{"owner on private", policyConnector(models.VisibilityPrivate, models.OpRead), owner, readOp(), ""},
		{"stranger on private", policyConnector(models.VisibilityPrivate, models.OpRead), otherOrg, readOp(), apperrors.DenyNotAuthorized},
		{"anonymous on private", policyConnector(models.VisibilityPrivate, models.OpRead), models.AnonymousPrincipal(), readOp(), apperrors.DenyNotAuthorized},
		{"same org on organization", policyConnector(models.VisibilityOrganization, models.OpRead), sameOrg, readOp(), ""},
		{"other org on organization", policyConnector(models.VisibilityOrganization, models.OpRead), otherOrg, readOp(), apperrors.DenyCrossOrganization},
		{"anonymous on organization", policyConnector(models.VisibilityOrganization, models.OpRead), models.AnonymousPrincipal(), readOp(), apperrors.DenyNotAuthorized},
		{"anonymous on public", policyConnector(models.VisibilityPublic, models.OpRead), models.AnonymousPrincipal(), readOp(), ""},
		{"write not on allow-list", policyConnector(models.VisibilityPublic, models.OpRead), owner, models.Operation{Class: models.OpWrite, Method: "POST", Path: "/"}, apperrors.DenyOperationNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := svc.Authorize(tc.connector, nil, tc.principal, tc.op)
			if tc.reason == "" {
				assert.True(t, decision.Allowed)
			} else {
				assert.False(t, decision.Allowed)
				assert.Equal(t, tc.reason, decision.Reason)
			}
		})
	}
}

func TestAccessService_InactiveBeatsEverything(t *testing.T) {
	svc := NewAccessService(zap.NewNop())

	c := policyConnector(models.VisibilityPublic, models.OpRead)
	c.IsActive = false

	// Even the owner with an allowed operation is denied, and the
	// reason is connector-inactive, not anything later in the order.
	decision := svc.Authorize(c, nil, owner, readOp())
	assert.False(t, decision.Allowed)
	assert.Equal(t, apperrors.DenyConnectorInactive, decision.Reason)

	// Same on the link path, even with a healthy link.
	link := &models.SharedLink{ID: "tok", Visibility: models.LinkPublic}
	decision = svc.Authorize(c, link, owner, readOp())
	assert.Equal(t, apperrors.DenyConnectorInactive, decision.Reason)
}

func TestAccessService_LinkDispatch(t *testing.T) {
	svc := NewAccessService(zap.NewNop())
	c := policyConnector(models.VisibilityPrivate, models.OpRead)
	past := time.Now().Add(-time.Minute)

	cases := []struct {
		name      string
		link      *models.SharedLink
		principal models.Principal
		reason    apperrors.DenialReason
	}{
		{
			"public link allows anonymous",
			&models.SharedLink{ID: "a", Visibility: models.LinkPublic},
			models.AnonymousPrincipal(),
			"",
		},
		{
			"expired link",
			&models.SharedLink{ID: "b", Visibility: models.LinkPublic, ExpiresAt: &past},
			owner,
			apperrors.DenyLinkUnusable,
		},
		{
			"revoked link",
			&models.SharedLink{ID: "c", Visibility: models.LinkPublic, Revoked: true},
			owner,
			apperrors.DenyLinkUnusable,
		},
		{
			"exhausted link",
			&models.SharedLink{ID: "d", Visibility: models.LinkPublic, MaxUses: intPtr(1), UseCount: 1},
			owner,
			apperrors.DenyLinkUnusable,
		},
		{
			"restricted link with listed principal",
			&models.SharedLink{ID: "e", Visibility: models.LinkRestricted, AllowedPrincipals: []string{"carol"}},
			models.Principal{ID: "carol"},
			"",
		},
		{
			"restricted link with unlisted principal",
			&models.SharedLink{ID: "f", Visibility: models.LinkRestricted, AllowedPrincipals: []string{"carol"}},
			models.Principal{ID: "dave"},
			apperrors.DenyPrincipalNotAllowed,
		},
		{
			"restricted link with anonymous",
			&models.SharedLink{ID: "g", Visibility: models.LinkRestricted, AllowedPrincipals: []string{"carol"}},
			models.AnonymousPrincipal(),
			apperrors.DenyPrincipalNotAllowed,
		},
		{
			// Unusable outranks principal: the reason reports the
			// link's state, not the caller's identity.
			"revoked and unlisted",
			&models.SharedLink{ID: "h", Visibility: models.LinkRestricted, AllowedPrincipals: []string{"carol"}, Revoked: true},
			models.Principal{ID: "dave"},
			apperrors.DenyLinkUnusable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := svc.Authorize(c, tc.link, tc.principal, readOp())
			if tc.reason == "" {
				assert.True(t, decision.Allowed)
			} else {
				assert.False(t, decision.Allowed)
				assert.Equal(t, tc.reason, decision.Reason)
			}
		})
	}
}

// A link grants access the principal would not have directly: the
// connector's own visibility is not consulted on the link path.
func TestAccessService_LinkBypassesConnectorVisibility(t *testing.T) {
	svc := NewAccessService(zap.NewNop())
	c := policyConnector(models.VisibilityPrivate, models.OpRead)
	link := &models.SharedLink{ID: "tok", Visibility: models.LinkPublic}

	decision := svc.Authorize(c, link, models.Principal{ID: "stranger", OrgID: "globex"}, readOp())
	assert.True(t, decision.Allowed)
}
