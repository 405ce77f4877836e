package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/proxylink-dev/proxylink/pkg/adapters/backend"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/services"
)

// stubConnectorService scripts ConnectorService responses per test.
type stubConnectorService struct {
	createFn     func(ctx context.Context, owner models.Principal, params services.CreateConnectorParams) (*models.Connector, error)
	resolveFn    func(ctx context.Context, id uuid.UUID) (*models.Connector, error)
	listFn       func(ctx context.Context, owner models.Principal) ([]*models.Connector, error)
	deactivateFn func(ctx context.Context, id uuid.UUID, actor models.Principal) error
	resealFn     func(ctx context.Context, actor models.Principal) (*services.RotationResult, error)
}

var _ services.ConnectorService = (*stubConnectorService)(nil)

func (s *stubConnectorService) Create(ctx context.Context, owner models.Principal, params services.CreateConnectorParams) (*models.Connector, error) {
	return s.createFn(ctx, owner, params)
}

func (s *stubConnectorService) Resolve(ctx context.Context, id uuid.UUID) (*models.Connector, error) {
	return s.resolveFn(ctx, id)
}

func (s *stubConnectorService) List(ctx context.Context, owner models.Principal) ([]*models.Connector, error) {
	return s.listFn(ctx, owner)
}

func (s *stubConnectorService) Deactivate(ctx context.Context, id uuid.UUID, actor models.Principal) error {
	return s.deactivateFn(ctx, id, actor)
}

func (s *stubConnectorService) ResealAll(ctx context.Context, actor models.Principal) (*services.RotationResult, error) {
	return s.resealFn(ctx, actor)
}

// stubLinkService scripts LinkService responses per test.
type stubLinkService struct {
	issueFn   func(ctx context.Context, connectorID uuid.UUID, actor models.Principal, params services.IssueLinkParams) (*models.SharedLink, error)
	resolveFn func(ctx context.Context, id string) (*models.SharedLink, error)
	consumeFn func(ctx context.Context, id string) error
	revokeFn  func(ctx context.Context, id string, actor models.Principal) error
	listFn    func(ctx context.Context, connectorID uuid.UUID, actor models.Principal) ([]*models.SharedLink, error)
}

var _ services.LinkService = (*stubLinkService)(nil)

func (s *stubLinkService) Issue(ctx context.Context, connectorID uuid.UUID, actor models.Principal, params services.IssueLinkParams) (*models.SharedLink, error) {
	return s.issueFn(ctx, connectorID, actor, params)
}

func (s *stubLinkService) Resolve(ctx context.Context, id string) (*models.SharedLink, error) {
	return s.resolveFn(ctx, id)
}

func (s *stubLinkService) Consume(ctx context.Context, id string) error {
	return s.consumeFn(ctx, id)
}

func (s *stubLinkService) Revoke(ctx context.Context, id string, actor models.Principal) error {
	return s.revokeFn(ctx, id, actor)
}

func (s *stubLinkService) ListByConnector(ctx context.Context, connectorID uuid.UUID, actor models.Principal) ([]*models.SharedLink, error) {
	return s.listFn(ctx, connectorID, actor)
}

// stubAuditService scripts AuditService responses per test.
type stubAuditService struct {
	recordFn func(ctx context.Context, entry *models.AccessLogEntry)
	listFn   func(ctx context.Context, connectorID uuid.UUID, actor models.Principal, limit, offset int) ([]*models.AccessLogEntry, error)
}

var _ services.AuditService = (*stubAuditService)(nil)

func (s *stubAuditService) Record(ctx context.Context, entry *models.AccessLogEntry) {
	if s.recordFn != nil {
		s.recordFn(ctx, entry)
	}
}

func (s *stubAuditService) ListByConnector(ctx context.Context, connectorID uuid.UUID, actor models.Principal, limit, offset int) ([]*models.AccessLogEntry, error) {
	return s.listFn(ctx, connectorID, actor, limit, offset)
}

// stubDispatchService scripts DispatchService responses per test.
type stubDispatchService struct {
	directFn func(ctx context.Context, connectorID uuid.UUID, principal models.Principal, op models.Operation) (*backend.Result, error)
	linkFn   func(ctx context.Context, linkID string, principal models.Principal, op models.Operation) (*backend.Result, error)
}

var _ services.DispatchService = (*stubDispatchService)(nil)

func (s *stubDispatchService) DispatchDirect(ctx context.Context, connectorID uuid.UUID, principal models.Principal, op models.Operation) (*backend.Result, error) {
	return s.directFn(ctx, connectorID, principal, op)
}

func (s *stubDispatchService) DispatchLink(ctx context.Context, linkID string, principal models.Principal, op models.Operation) (*backend.Result, error) {
	return s.linkFn(ctx, linkID, principal, op)
}
