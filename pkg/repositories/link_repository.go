package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/database"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// LinkRepository defines data access for shared links.
//
// Consume is the single contended operation in the subsystem: the
// usability predicate and the use-count increment execute as one
// conditional UPDATE, so two concurrent requests against a link with
// max_uses=1 can never both succeed.
type LinkRepository interface {
	// Create inserts a new shared link.
	Create(ctx context.Context, l *models.SharedLink) error

	// GetByID retrieves a link by its token.
	GetByID(ctx context.Context, id string) (*models.SharedLink, error)

	// Consume atomically re-checks the usability predicate and
	// increments use_count. Returns true if a use was consumed; false
	// if the link was unusable at the atomic step (the caller re-reads
	// the row to classify why).
	Consume(ctx context.Context, id string, now time.Time) (bool, error)

	// Revoke sets revoked=true. Idempotent; revoking a revoked link is
	// a no-op.
	Revoke(ctx context.Context, id string) error

	// ListByConnector retrieves all links issued for a connector.
	ListByConnector(ctx context.Context, connectorID uuid.UUID) ([]*models.SharedLink, error)
}

type linkRepository struct {
	db *database.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *database.DB) LinkRepository {
	return &linkRepository{db: db}
}

var _ LinkRepository = (*linkRepository)(nil)

const linkColumns = `id, connector_id, visibility, allowed_principals,
	expires_at, max_uses, use_count, revoked, created_by, created_at`

func (r *linkRepository) Create(ctx context.Context, l *models.SharedLink) error {
	l.CreatedAt = time.Now()

	query := `
		INSERT INTO shared_links (
			id, connector_id, visibility, allowed_principals,
			expires_at, max_uses, use_count, revoked, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, false, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		l.ID,
		l.ConnectorID,
		string(l.Visibility),
		l.AllowedPrincipals,
		l.ExpiresAt,
		l.MaxUses,
		l.CreatedBy,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create shared link: %w", err)
	}
	return nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*models.SharedLink, error) {
	query := `SELECT ` + linkColumns + ` FROM shared_links WHERE id = $1`

	l, err := scanLink(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shared link: %w", err)
	}
	return l, nil
}

// Consume performs the atomic check-and-increment. The WHERE clause is
// the usability predicate; a link that fails it never has its counter
// touched, and a revocation landing between a caller's pre-check and
// this statement is still observed here.
func (r *linkRepository) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shared_links
		SET use_count = use_count + 1
		WHERE id = $1
		  AND NOT revoked
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (max_uses IS NULL OR use_count < max_uses)`,
		id, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume link use: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *linkRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE shared_links SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *linkRepository) ListByConnector(ctx context.Context, connectorID uuid.UUID) ([]*models.SharedLink, error) {
	query := `SELECT ` + linkColumns + ` FROM shared_links WHERE connector_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, connectorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared links: %w", err)
	}
	defer rows.Close()

	var result []*models.SharedLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shared link: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shared links: %w", err)
	}
	return result, nil
}

func scanLink(row pgx.Row) (*models.SharedLink, error) {
	var l models.SharedLink
	var visibility string

	err := row.Scan(
		&l.ID,
		&l.ConnectorID,
		&visibility,
		&l.AllowedPrincipals,
		&l.ExpiresAt,
		&l.MaxUses,
		&l.UseCount,
		&l.Revoked,
		&l.CreatedBy,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Visibility = models.LinkVisibility(visibility)
	return &l, nil
}
