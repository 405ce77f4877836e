package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/vault"
)

var (
	owner = models.Principal{ID: "alice", OrgID: "acme"}
	admin = models.Principal{ID: "root", Admin: true}
	other = models.Principal{ID: "bob", OrgID: "acme"}
)

func validCreateParams() CreateConnectorParams {
	return CreateConnectorParams{
		Name:              "prod-api",
		Kind:              models.KindHTTP,
		Config:            map[string]any{"base_url": "https://api.example.com"},
		Credentials:       map[string]any{"auth_token": "tok-secret"},
		AllowedOperations: []models.OpClass{models.OpRead},
		Visibility:        models.VisibilityPrivate,
	}
}

func TestConnectorService_Create(t *testing.T) {
	store := newFakeConnectorStore()
	v := testVault()
	svc := NewConnectorService(store, v, &fakeRegistry{adapter: &fakeAdapter{}}, zap.NewNop())

	c, err := svc.Create(context.Background(), owner, validCreateParams())
	require.NoError(t, err)

	assert.NotEqual(t, "", c.ID.String())
	assert.True(t, c.IsActive)
	assert.Equal(t, "alice", c.OwnerID)
	assert.Equal(t, "acme", c.OwnerOrgID)

	// Stored blobs are ciphertext, and round-trip back to the input.
	assert.NotContains(t, c.EncryptedCredentials, "tok-secret")
	plain, err := v.Unseal(c.EncryptedCredentials)
	require.NoError(t, err)
	defer vault.Wipe(plain)

	var creds map[string]any
	require.NoError(t, json.Unmarshal(plain, &creds))
	assert.Equal(t, "tok-secret", creds["auth_token"])
}

func TestConnectorService_CreateValidation(t *testing.T) {
	svc := NewConnectorService(newFakeConnectorStore(), testVault(), &fakeRegistry{adapter: &fakeAdapter{}}, zap.NewNop())

	_, err := svc.Create(context.Background(), models.AnonymousPrincipal(), validCreateParams())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	cases := []struct {
		name   string
		mutate func(*CreateConnectorParams)
	}{
		{"empty name", func(p *CreateConnectorParams) { p.Name = "" }},
		{"unknown kind", func(p *CreateConnectorParams) { p.Kind = "graph" }},
		{"unknown visibility", func(p *CreateConnectorParams) { p.Visibility = "hidden" }},
		{"no operations", func(p *CreateConnectorParams) { p.AllowedOperations = nil }},
		{"unknown operation", func(p *CreateConnectorParams) { p.AllowedOperations = []models.OpClass{"execute"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validCreateParams()
			tc.mutate(&params)
			_, err := svc.Create(context.Background(), owner, params)
			assert.ErrorIs(t, err, apperrors.ErrConfig)
		})
	}
}

func TestConnectorService_CreateRejectsBadAdapterConfig(t *testing.T) {
	adapter := &fakeAdapter{validateFn: func(map[string]any) error {
		return apperrors.ErrConfig
	}}
	svc := NewConnectorService(newFakeConnectorStore(), testVault(), &fakeRegistry{adapter: adapter}, zap.NewNop())

	_, err := svc.Create(context.Background(), owner, validCreateParams())
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestConnectorService_CreateDuplicateName(t *testing.T) {
	svc := NewConnectorService(newFakeConnectorStore(), testVault(), &fakeRegistry{adapter: &fakeAdapter{}}, zap.NewNop())

	_, err := svc.Create(context.Background(), owner, validCreateParams())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), owner, validCreateParams())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestConnectorService_Deactivate(t *testing.T) {
	store := newFakeConnectorStore()
	svc := NewConnectorService(store, testVault(), &fakeRegistry{adapter: &fakeAdapter{}}, zap.NewNop())

	c, err := svc.Create(context.Background(), owner, validCreateParams())
	require.NoError(t, err)

	// Non-owner may not deactivate.
	assert.ErrorIs(t, svc.Deactivate(context.Background(), c.ID, other), apperrors.ErrForbidden)

	require.NoError(t, svc.Deactivate(context.Background(), c.ID, owner))

	got, err := svc.Resolve(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Admin may deactivate someone else's connector.
	params := validCreateParams()
	params.Name = "second"
	c2, err := svc.Create(context.Background(), owner, params)
	require.NoError(t, err)
	assert.NoError(t, svc.Deactivate(context.Background(), c2.ID, admin))
}

func TestConnectorService_ResealAll(t *testing.T) {
	store := newFakeConnectorStore()

	oldVault, err := vault.New(map[string]string{"v1": "old-key"}, "v1")
	require.NoError(t, err)

	oldSvc := NewConnectorService(store, oldVault, &fakeRegistry{adapter: &fakeAdapter{}}, zap.NewNop())
	c, err := oldSvc.Create(context.Background(), owner, validCreateParams())
	require.NoError(t, err)

	// Rotated vault keeps the old generation for unsealing.
	newVault, err := vault.New(map[string]string{"v1": "old-key", "v2": "new-key"}, "v2")
	require.NoError(t, err)
	newSvc := NewConnectorService(store, newVault, &fakeRegistry{adapter: &fakeAdapter{}}, zap.NewNop())

	_, err = newSvc.ResealAll(context.Background(), owner)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	result, err := newSvc.ResealAll(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)

	got, err := store.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, newVault.SealedWithActiveKey(got.EncryptedConfig))
	assert.True(t, newVault.SealedWithActiveKey(got.EncryptedCredentials))

	// Old ciphertext under the new blob must carry the secret intact.
	plain, err := newVault.Unseal(got.EncryptedCredentials)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "tok-secret")

	// A second pass finds everything current.
	result, err = newSvc.ResealAll(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
}
