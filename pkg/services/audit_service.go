package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/logging"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/repositories"
)

// AuditService writes and reads the append-only dispatch ledger.
type AuditService interface {
	// Record appends one entry. A write failure is logged but never
	// propagated: auditing must not take down an otherwise healthy
	// dispatch path.
	Record(ctx context.Context, entry *models.AccessLogEntry)

	// ListByConnector returns a connector's ledger, newest first.
	// Owner or admin only.
	ListByConnector(ctx context.Context, connectorID uuid.UUID, actor models.Principal, limit, offset int) ([]*models.AccessLogEntry, error)
}

type auditService struct {
	entries    repositories.AccessLogRepository
	connectors repositories.ConnectorRepository
	logger     *zap.Logger
}

// NewAuditService creates an audit service.
func NewAuditService(entries repositories.AccessLogRepository, connectors repositories.ConnectorRepository, logger *zap.Logger) AuditService {
	return &auditService{
		entries:    entries,
		connectors: connectors,
		logger:     logger.Named("audit"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(ctx context.Context, entry *models.AccessLogEntry) {
	if err := s.entries.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write access log entry",
			zap.String("connector_id", entry.ConnectorID.String()),
			zap.String("outcome", string(entry.Outcome)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return
	}

	fields := []zap.Field{
		zap.String("connector_id", entry.ConnectorID.String()),
		zap.String("operation", entry.Operation),
		zap.String("op_class", string(entry.OpClass)),
		zap.String("outcome", string(entry.Outcome)),
		zap.Int64("latency_ms", entry.LatencyMs),
	}
	if entry.PrincipalID != nil {
		fields = append(fields, zap.String("principal_id", *entry.PrincipalID))
	}
	if entry.Reason != nil {
		fields = append(fields, zap.String("reason", *entry.Reason))
	}
	s.logger.Info("Dispatch recorded", fields...)
}

func (s *auditService) ListByConnector(ctx context.Context, connectorID uuid.UUID, actor models.Principal, limit, offset int) ([]*models.AccessLogEntry, error) {
	connector, err := s.connectors.GetByID(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && actor.ID != connector.OwnerID {
		return nil, apperrors.ErrForbidden
	}
	return s.entries.ListByConnector(ctx, connectorID, limit, offset)
}
