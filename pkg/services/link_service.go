package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/repositories"
)

// linkTokenBytes is the entropy of a link token before encoding.
const linkTokenBytes = 32

// IssueLinkParams carries the bounds of a new shared link. A nil
// ExpiresAt or MaxUses means unbounded on that axis; a link may be
// unbounded on both.
type IssueLinkParams struct {
	Visibility        models.LinkVisibility
	AllowedPrincipals []string
	ExpiresAt         *time.Time
	MaxUses           *int
}

// LinkService manages shared links and their consumption.
type LinkService interface {
	// Issue mints a link for a connector. Only the connector owner or
	// an admin may issue links.
	Issue(ctx context.Context, connectorID uuid.UUID, actor models.Principal, params IssueLinkParams) (*models.SharedLink, error)

	// Resolve retrieves a link by token without consuming a use.
	Resolve(ctx context.Context, id string) (*models.SharedLink, error)

	// Consume atomically spends one use of the link. When the link is
	// unusable it returns a LinkError classifying the terminal state.
	Consume(ctx context.Context, id string) error

	// Revoke permanently disables a link. Idempotent. Only the link
	// creator, the connector owner, or an admin may revoke.
	Revoke(ctx context.Context, id string, actor models.Principal) error

	// ListByConnector returns a connector's links for its owner or an
	// admin.
	ListByConnector(ctx context.Context, connectorID uuid.UUID, actor models.Principal) ([]*models.SharedLink, error)
}

type linkService struct {
	links      repositories.LinkRepository
	connectors repositories.ConnectorRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewLinkService creates a link service.
func NewLinkService(links repositories.LinkRepository, connectors repositories.ConnectorRepository, logger *zap.Logger) LinkService {
	return &linkService{
		links:      links,
		connectors: connectors,
		logger:     logger.Named("link-service"),
		now:        time.Now,
	}
}

var _ LinkService = (*linkService)(nil)

func (s *linkService) Issue(ctx context.Context, connectorID uuid.UUID, actor models.Principal, params IssueLinkParams) (*models.SharedLink, error) {
	connector, err := s.connectors.GetByID(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && actor.ID != connector.OwnerID {
		return nil, apperrors.ErrForbidden
	}

	if params.Visibility == "" {
		params.Visibility = models.LinkPublic
	}
	if !params.Visibility.Valid() {
		return nil, fmt.Errorf("%w: unknown link visibility %q", apperrors.ErrConfig, params.Visibility)
	}
	if params.Visibility == models.LinkRestricted && len(params.AllowedPrincipals) == 0 {
		return nil, fmt.Errorf("%w: restricted links require allowed principals", apperrors.ErrConfig)
	}
	if params.ExpiresAt != nil && !params.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", apperrors.ErrConfig)
	}
	if params.MaxUses != nil && *params.MaxUses < 1 {
		return nil, fmt.Errorf("%w: max uses must be at least 1", apperrors.ErrConfig)
	}

	token, err := newLinkToken()
	if err != nil {
		return nil, err
	}

	link := &models.SharedLink{
		ID:                token,
		ConnectorID:       connectorID,
		Visibility:        params.Visibility,
		AllowedPrincipals: params.AllowedPrincipals,
		ExpiresAt:         params.ExpiresAt,
		MaxUses:           params.MaxUses,
		CreatedBy:         actor.ID,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return nil, err
	}

	// The token itself is a bearer secret and is never logged.
	s.logger.Info("Issued shared link",
		zap.String("connector_id", connectorID.String()),
		zap.String("visibility", string(link.Visibility)),
		zap.Bool("bounded_expiry", link.ExpiresAt != nil),
		zap.Bool("bounded_uses", link.MaxUses != nil),
	)
	return link, nil
}

// newLinkToken returns a 256-bit random token, base64url encoded.
func newLinkToken() (string, error) {
	buf := make([]byte, linkTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate link token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *linkService) Resolve(ctx context.Context, id string) (*models.SharedLink, error) {
	return s.links.GetByID(ctx, id)
}

func (s *linkService) Consume(ctx context.Context, id string) error {
	consumed, err := s.links.Consume(ctx, id, s.now())
	if err != nil {
		return err
	}
	if consumed {
		return nil
	}

	// The atomic step refused; re-read to classify why. If the link
	// still looks usable here another request raced us past the
	// ceiling, which reads as exhausted.
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	kind := link.TerminalState(s.now())
	if kind == "" {
		kind = apperrors.LinkExhausted
	}
	return &apperrors.LinkError{Kind: kind}
}

func (s *linkService) Revoke(ctx context.Context, id string, actor models.Principal) error {
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Admin && actor.ID != link.CreatedBy {
		connector, err := s.connectors.GetByID(ctx, link.ConnectorID)
		if err != nil {
			return err
		}
		if actor.ID != connector.OwnerID {
			return apperrors.ErrForbidden
		}
	}

	if err := s.links.Revoke(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Revoked shared link",
		zap.String("connector_id", link.ConnectorID.String()),
		zap.String("actor_id", actor.ID),
	)
	return nil
}

func (s *linkService) ListByConnector(ctx context.Context, connectorID uuid.UUID, actor models.Principal) ([]*models.SharedLink, error) {
	connector, err := s.connectors.GetByID(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && actor.ID != connector.OwnerID {
		return nil, apperrors.ErrForbidden
	}
	return s.links.ListByConnector(ctx, connectorID)
}
