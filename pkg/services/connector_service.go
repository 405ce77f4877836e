// Package services contains the proxy subsystem's business logic:
// connector registry, shared link manager, access controller, audit
// logger, and the dispatch façade.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/adapters/backend"
	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/repositories"
	"github.com/proxylink-dev/proxylink/pkg/vault"
)

// AdapterRegistry resolves a connector kind to its backend adapter.
// Implemented by backend.Registry; tests substitute fakes.
type AdapterRegistry interface {
	ForKind(kind models.Kind) (backend.Adapter, error)
}

// CreateConnectorParams carries the one-time plaintext connector
// definition. Config and Credentials are sealed during Create and the
// plaintext is discarded before it returns.
type CreateConnectorParams struct {
	Name              string
	Kind              models.Kind
	Config            map[string]any
	Credentials       map[string]any
	AllowedOperations []models.OpClass
	Visibility        models.Visibility
}

// RotationResult summarizes a ResealAll pass.
type RotationResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ConnectorService owns proxy connector records.
type ConnectorService interface {
	// Create validates the definition against the kind's adapter,
	// seals config and credentials, and stores the connector.
	Create(ctx context.Context, owner models.Principal, params CreateConnectorParams) (*models.Connector, error)

	// Resolve retrieves an active connector without decrypting
	// anything. Inactive connectors resolve too; policy decides.
	Resolve(ctx context.Context, id uuid.UUID) (*models.Connector, error)

	// List retrieves the connectors a principal owns.
	List(ctx context.Context, owner models.Principal) ([]*models.Connector, error)

	// Deactivate soft-disables a connector. Owner or admin only.
	Deactivate(ctx context.Context, id uuid.UUID, actor models.Principal) error

	// ResealAll re-encrypts every connector's sealed blobs under the
	// active vault key generation. Admin only; used after rotation.
	ResealAll(ctx context.Context, actor models.Principal) (*RotationResult, error)
}

type connectorService struct {
	repo     repositories.ConnectorRepository
	vault    *vault.Vault
	registry AdapterRegistry
	logger   *zap.Logger
}

// NewConnectorService creates a connector service.
func NewConnectorService(repo repositories.ConnectorRepository, v *vault.Vault, registry AdapterRegistry, logger *zap.Logger) ConnectorService {
	return &connectorService{
		repo:     repo,
		vault:    v,
		registry: registry,
		logger:   logger.Named("connector-service"),
	}
}

var _ ConnectorService = (*connectorService)(nil)

func (s *connectorService) Create(ctx context.Context, owner models.Principal, params CreateConnectorParams) (*models.Connector, error) {
	if owner.Anonymous {
		return nil, apperrors.ErrForbidden
	}
	if params.Name == "" {
		return nil, fmt.Errorf("%w: connector name is required", apperrors.ErrConfig)
	}
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown connector kind %q", apperrors.ErrConfig, params.Kind)
	}
	if !params.Visibility.Valid() {
		return nil, fmt.Errorf("%w: unknown visibility %q", apperrors.ErrConfig, params.Visibility)
	}
	if len(params.AllowedOperations) == 0 {
		return nil, fmt.Errorf("%w: at least one allowed operation is required", apperrors.ErrConfig)
	}
	for _, op := range params.AllowedOperations {
		if !op.Valid() {
			return nil, fmt.Errorf("%w: unknown operation class %q", apperrors.ErrConfig, op)
		}
	}

	// Config is validated before any secret is accepted.
	adapter, err := s.registry.ForKind(params.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	if err := adapter.ValidateConfig(params.Config); err != nil {
		return nil, err
	}

	encryptedConfig, err := s.seal(params.Config)
	if err != nil {
		return nil, err
	}
	encryptedCredentials, err := s.seal(params.Credentials)
	if err != nil {
		return nil, err
	}

	c := &models.Connector{
		Name:                 params.Name,
		Kind:                 params.Kind,
		EncryptedConfig:      encryptedConfig,
		EncryptedCredentials: encryptedCredentials,
		AllowedOperations:    params.AllowedOperations,
		OwnerID:              owner.ID,
		OwnerOrgID:           owner.OrgID,
		Visibility:           params.Visibility,
		IsActive:             true,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("Created connector",
		zap.String("id", c.ID.String()),
		zap.String("kind", string(c.Kind)),
		zap.String("owner_id", c.OwnerID),
		zap.String("visibility", string(c.Visibility)),
	)
	return c, nil
}

// seal marshals and encrypts a plaintext map, wiping the intermediate
// JSON buffer before returning.
func (s *connectorService) seal(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	plaintext, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	defer vault.Wipe(plaintext)

	return s.vault.Seal(plaintext)
}

func (s *connectorService) Resolve(ctx context.Context, id uuid.UUID) (*models.Connector, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *connectorService) List(ctx context.Context, owner models.Principal) ([]*models.Connector, error) {
	if owner.Anonymous {
		return nil, apperrors.ErrForbidden
	}
	return s.repo.ListByOwner(ctx, owner.ID)
}

func (s *connectorService) Deactivate(ctx context.Context, id uuid.UUID, actor models.Principal) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Admin && actor.ID != c.OwnerID {
		return apperrors.ErrForbidden
	}

	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("Deactivated connector",
		zap.String("id", id.String()),
		zap.String("actor_id", actor.ID),
	)
	return nil
}

func (s *connectorService) ResealAll(ctx context.Context, actor models.Principal) (*RotationResult, error) {
	if !actor.Admin {
		return nil, apperrors.ErrForbidden
	}

	connectors, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &RotationResult{}
	for _, c := range connectors {
		if s.vault.SealedWithActiveKey(c.EncryptedConfig) && s.vault.SealedWithActiveKey(c.EncryptedCredentials) {
			result.Skipped++
			continue
		}

		newConfig, err := s.vault.Reseal(c.EncryptedConfig)
		if err != nil {
			s.logger.Error("Failed to reseal connector config", zap.String("id", c.ID.String()), zap.Error(err))
			result.Failed++
			continue
		}
		newCredentials, err := s.vault.Reseal(c.EncryptedCredentials)
		if err != nil {
			s.logger.Error("Failed to reseal connector credentials", zap.String("id", c.ID.String()), zap.Error(err))
			result.Failed++
			continue
		}

		if err := s.repo.UpdateSealed(ctx, c.ID, newConfig, newCredentials); err != nil {
			s.logger.Error("Failed to store resealed blobs", zap.String("id", c.ID.String()), zap.Error(err))
			result.Failed++
			continue
		}
		result.Processed++
	}

	s.logger.Info("Reseal pass complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
