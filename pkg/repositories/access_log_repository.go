package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proxylink-dev/proxylink/pkg/database"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// AccessLogRepository provides access to the append-only dispatch
// ledger. There is deliberately no update or delete method: entries are
// immutable once written, for every caller including administrators.
type AccessLogRepository interface {
	// Create inserts a new access log entry.
	Create(ctx context.Context, entry *models.AccessLogEntry) error

	// ListByConnector returns entries for a connector, newest first.
	ListByConnector(ctx context.Context, connectorID uuid.UUID, limit, offset int) ([]*models.AccessLogEntry, error)
}

type accessLogRepository struct {
	db *database.DB
}

// NewAccessLogRepository creates a new access log repository.
func NewAccessLogRepository(db *database.DB) AccessLogRepository {
	return &accessLogRepository{db: db}
}

var _ AccessLogRepository = (*accessLogRepository)(nil)

func (r *accessLogRepository) Create(ctx context.Context, entry *models.AccessLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO proxy_access_log (
			id, connector_id, link_id, principal_id, operation, op_class,
			outcome, reason, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.ConnectorID,
		entry.LinkID,
		entry.PrincipalID,
		entry.Operation,
		string(entry.OpClass),
		string(entry.Outcome),
		entry.Reason,
		entry.LatencyMs,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create access log entry: %w", err)
	}
	return nil
}

func (r *accessLogRepository) ListByConnector(ctx context.Context, connectorID uuid.UUID, limit, offset int) ([]*models.AccessLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, connector_id, link_id, principal_id, operation, op_class,
		       outcome, reason, latency_ms, created_at
		FROM proxy_access_log
		WHERE connector_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, connectorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list access log entries: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessLogEntry
	for rows.Next() {
		var e models.AccessLogEntry
		var opClass, outcome string
		err := rows.Scan(
			&e.ID,
			&e.ConnectorID,
			&e.LinkID,
			&e.PrincipalID,
			&e.Operation,
			&opClass,
			&outcome,
			&e.Reason,
			&e.LatencyMs,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access log entry: %w", err)
		}
		e.OpClass = models.OpClass(opClass)
		e.Outcome = models.Outcome(outcome)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read access log entries: %w", err)
	}
	return result, nil
}
