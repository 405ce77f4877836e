// Package repositories provides data access for connector, link, and
// access-log records. Encrypted blobs are stored as opaque TEXT;
// sealing/unsealing is the service layer's concern.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/database"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// ConnectorRepository defines data access for proxy connectors.
type ConnectorRepository interface {
	// Create inserts a new connector. Returns apperrors.ErrConflict if
	// the owner already has a connector with the same name.
	Create(ctx context.Context, c *models.Connector) error

	// GetByID retrieves a connector by ID regardless of active state.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Connector, error)

	// ListByOwner retrieves all connectors owned by a principal.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Connector, error)

	// SetActive flips the soft-deactivation flag.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// UpdateSealed replaces the encrypted blobs (key rotation).
	UpdateSealed(ctx context.Context, id uuid.UUID, encryptedConfig, encryptedCredentials string) error

	// ListAll enumerates every connector, active or not. Used by the
	// rotation pass.
	ListAll(ctx context.Context) ([]*models.Connector, error)
}

type connectorRepository struct {
	db *database.DB
}

// NewConnectorRepository creates a new connector repository.
func NewConnectorRepository(db *database.DB) ConnectorRepository {
	return &connectorRepository{db: db}
}

var _ ConnectorRepository = (*connectorRepository)(nil)

const connectorColumns = `id, name, kind, encrypted_config, encrypted_credentials,
	allowed_operations, owner_id, owner_org_id, visibility, is_active, created_at, updated_at`

func (r *connectorRepository) Create(ctx context.Context, c *models.Connector) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	ops := make([]string, len(c.AllowedOperations))
	for i, op := range c.AllowedOperations {
		ops[i] = string(op)
	}

	query := `
		INSERT INTO proxy_connectors (
			name, kind, encrypted_config, encrypted_credentials,
			allowed_operations, owner_id, owner_org_id, visibility, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		c.Name,
		string(c.Kind),
		c.EncryptedConfig,
		c.EncryptedCredentials,
		ops,
		c.OwnerID,
		c.OwnerOrgID,
		string(c.Visibility),
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create connector: %w", err)
	}

	return nil
}

func (r *connectorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connector, error) {
	query := `SELECT ` + connectorColumns + ` FROM proxy_connectors WHERE id = $1`

	c, err := scanConnector(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connector: %w", err)
	}
	return c, nil
}

func (r *connectorRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Connector, error) {
	query := `SELECT ` + connectorColumns + ` FROM proxy_connectors WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}
	defer rows.Close()

	return collectConnectors(rows)
}

func (r *connectorRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE proxy_connectors SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("failed to update connector state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectorRepository) UpdateSealed(ctx context.Context, id uuid.UUID, encryptedConfig, encryptedCredentials string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE proxy_connectors SET encrypted_config = $2, encrypted_credentials = $3, updated_at = now() WHERE id = $1`,
		id, encryptedConfig, encryptedCredentials)
	if err != nil {
		return fmt.Errorf("failed to update sealed blobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectorRepository) ListAll(ctx context.Context) ([]*models.Connector, error) {
	rows, err := r.db.Query(ctx, `SELECT `+connectorColumns+` FROM proxy_connectors ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}
	defer rows.Close()

	return collectConnectors(rows)
}

func scanConnector(row pgx.Row) (*models.Connector, error) {
	var c models.Connector
	var kind, visibility string
	var ops []string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&kind,
		&c.EncryptedConfig,
		&c.EncryptedCredentials,
		&ops,
		&c.OwnerID,
		&c.OwnerOrgID,
		&visibility,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = models.Kind(kind)
	c.Visibility = models.Visibility(visibility)
	c.AllowedOperations = make([]models.OpClass, len(ops))
	for i, op := range ops {
		c.AllowedOperations[i] = models.OpClass(op)
	}
	return &c, nil
}

func collectConnectors(rows pgx.Rows) ([]*models.Connector, error) {
	var result []*models.Connector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connector: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read connectors: %w", err)
	}
	return result, nil
}
