package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/adapters/backend"
	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/logging"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/repositories"
	"github.com/proxylink-dev/proxylink/pkg/sqlguard"
	"github.com/proxylink-dev/proxylink/pkg/vault"
)

// Unsealer decrypts sealed connector blobs. Satisfied by *vault.Vault;
// tests substitute counting fakes to prove denied dispatches never
// touch the vault.
type Unsealer interface {
	Unseal(sealed string) ([]byte, error)
}

// reasonVaultError marks an allowed-failure where the request passed
// policy but the sealed blobs could not be decrypted.
const reasonVaultError = "vault-error"

// DispatchService executes proxied operations end to end: resolve,
// authorize, consume (link path), unseal, execute, audit. Decryption
// happens strictly after an Allow decision, and every attempt that
// reaches policy is recorded whatever its outcome.
type DispatchService interface {
	// DispatchDirect executes an operation against a connector
	// addressed by its id.
	DispatchDirect(ctx context.Context, connectorID uuid.UUID, principal models.Principal, op models.Operation) (*backend.Result, error)

	// DispatchLink executes an operation through a shared link,
	// consuming one use on success of the policy checks.
	DispatchLink(ctx context.Context, linkID string, principal models.Principal, op models.Operation) (*backend.Result, error)
}

type dispatchService struct {
	connectors repositories.ConnectorRepository
	links      LinkService
	access     AccessService
	unsealer   Unsealer
	registry   AdapterRegistry
	audit      AuditService
	logger     *zap.Logger
	now        func() time.Time
}

// NewDispatchService creates the dispatcher.
func NewDispatchService(
	connectors repositories.ConnectorRepository,
	links LinkService,
	access AccessService,
	unsealer Unsealer,
	registry AdapterRegistry,
	audit AuditService,
	logger *zap.Logger,
) DispatchService {
	return &dispatchService{
		connectors: connectors,
		links:      links,
		access:     access,
		unsealer:   unsealer,
		registry:   registry,
		audit:      audit,
		logger:     logger.Named("dispatcher"),
		now:        time.Now,
	}
}

var _ DispatchService = (*dispatchService)(nil)

func (s *dispatchService) DispatchDirect(ctx context.Context, connectorID uuid.UUID, principal models.Principal, op models.Operation) (*backend.Result, error) {
	connector, err := s.connectors.GetByID(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, connector, nil, principal, op)
}

func (s *dispatchService) DispatchLink(ctx context.Context, linkID string, principal models.Principal, op models.Operation) (*backend.Result, error) {
	link, err := s.links.Resolve(ctx, linkID)
	if err != nil {
		return nil, err
	}
	connector, err := s.connectors.GetByID(ctx, link.ConnectorID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, connector, link, principal, op)
}

func (s *dispatchService) dispatch(ctx context.Context, connector *models.Connector, link *models.SharedLink, principal models.Principal, op models.Operation) (*backend.Result, error) {
	start := s.now()

	// Malformed envelopes never reach the policy point and are not
	// audited; there was no dispatch to decide on.
	if err := op.Validate(connector.Kind); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	if err := s.screenParams(connector, principal, op); err != nil {
		return nil, err
	}
	adapter, err := s.registry.ForKind(connector.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}

	decision := s.access.Authorize(connector, link, principal, op)
	if !decision.Allowed {
		s.record(ctx, connector, link, principal, op, models.OutcomeDenied, string(decision.Reason), start)
		return nil, &apperrors.Denial{Reason: decision.Reason}
	}

	if link != nil {
		// The authoritative use-count step. A concurrent consumer or a
		// revocation that landed after the pre-check surfaces here.
		if err := s.links.Consume(ctx, link.ID); err != nil {
			var linkErr *apperrors.LinkError
			if errors.As(err, &linkErr) {
				s.record(ctx, connector, link, principal, op, models.OutcomeDenied, string(apperrors.DenyLinkUnusable), start)
				return nil, &apperrors.Denial{Reason: apperrors.DenyLinkUnusable}
			}
			return nil, err
		}
	}

	config, credentials, err := s.unsealConnector(connector)
	if err != nil {
		s.record(ctx, connector, link, principal, op, models.OutcomeAllowedFailure, reasonVaultError, start)
		return nil, err
	}

	result, err := adapter.Execute(ctx, config, credentials, op)
	if err != nil {
		s.record(ctx, connector, link, principal, op, models.OutcomeAllowedFailure, s.failureReason(ctx, err), start)
		return nil, err
	}

	s.record(ctx, connector, link, principal, op, models.OutcomeAllowedSuccess, "", start)
	return result, nil
}

// screenParams runs the injection screen over relational parameters.
// A hit is logged as a security event and rejected before policy; the
// fingerprint is recorded, never the parameter value.
func (s *dispatchService) screenParams(connector *models.Connector, principal models.Principal, op models.Operation) error {
	if connector.Kind != models.KindRelational || len(op.Params) == 0 {
		return nil
	}
	hits := sqlguard.CheckParams(op.Params)
	if len(hits) == 0 {
		return nil
	}
	for _, hit := range hits {
		s.logger.Warn("SQL injection pattern in operation parameter",
			zap.String("connector_id", connector.ID.String()),
			zap.String("principal_id", principal.ID),
			zap.Int("param_index", hit.ParamIndex),
			zap.String("fingerprint", hit.Fingerprint),
			zap.String("query", logging.SanitizeQuery(op.Query)),
		)
	}
	return fmt.Errorf("%w: parameter %d failed injection screening", apperrors.ErrConfig, hits[0].ParamIndex)
}

// unsealConnector decrypts both sealed blobs and unmarshals them. The
// intermediate plaintext buffers are wiped before returning; the maps
// live only for the duration of the dispatch.
func (s *dispatchService) unsealConnector(connector *models.Connector) (map[string]any, map[string]any, error) {
	configPlain, err := s.unsealer.Unseal(connector.EncryptedConfig)
	if err != nil {
		return nil, nil, err
	}
	defer vault.Wipe(configPlain)

	credentialsPlain, err := s.unsealer.Unseal(connector.EncryptedCredentials)
	if err != nil {
		return nil, nil, err
	}
	defer vault.Wipe(credentialsPlain)

	var config, credentials map[string]any
	if err := json.Unmarshal(configPlain, &config); err != nil {
		return nil, nil, apperrors.ErrVault
	}
	if err := json.Unmarshal(credentialsPlain, &credentials); err != nil {
		return nil, nil, apperrors.ErrVault
	}
	return config, credentials, nil
}

// failureReason maps a backend execution error to its audit reason.
// Caller disconnects are recorded as cancelled, not as backend faults.
func (s *dispatchService) failureReason(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.ReasonCancelled
	}
	var backendErr *apperrors.BackendError
	if errors.As(err, &backendErr) {
		return string(backendErr.Kind)
	}
	return string(apperrors.BackendNetwork)
}

func (s *dispatchService) record(ctx context.Context, connector *models.Connector, link *models.SharedLink, principal models.Principal, op models.Operation, outcome models.Outcome, reason string, start time.Time) {
	entry := &models.AccessLogEntry{
		ConnectorID: connector.ID,
		Operation:   op.Describe(connector.Kind),
		OpClass:     op.Class,
		Outcome:     outcome,
		LatencyMs:   s.now().Sub(start).Milliseconds(),
	}
	if link != nil {
		id := link.ID
		entry.LinkID = &id
	}
	if !principal.Anonymous && principal.ID != "" {
		id := principal.ID
		entry.PrincipalID = &id
	}
	if reason != "" {
		r := reason
		entry.Reason = &r
	}

	// Auditing survives caller disconnect: the entry is written on a
	// fresh context even when the request's context is already dead.
	s.audit.Record(context.WithoutCancel(ctx), entry)
}
