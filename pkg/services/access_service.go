package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// Decision is the access controller's verdict on a dispatch attempt.
// Denied decisions carry exactly one enumerable reason code.
type Decision struct {
	Allowed bool
	Reason  apperrors.DenialReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason apperrors.DenialReason) Decision {
	return Decision{Reason: reason}
}

// AccessService is the single policy decision point for dispatches.
// Every proxied operation passes through Authorize before any secret is
// decrypted; the dispatcher enforces that ordering.
type AccessService interface {
	// Authorize evaluates the dispatch policy. Link is nil for direct
	// (connector-id) dispatches. Rules are checked in a fixed order and
	// the first failing rule's reason is returned.
	Authorize(connector *models.Connector, link *models.SharedLink, principal models.Principal, op models.Operation) Decision
}

type accessService struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewAccessService creates the access controller.
func NewAccessService(logger *zap.Logger) AccessService {
	return &accessService{
		logger: logger.Named("access-controller"),
		now:    time.Now,
	}
}

var _ AccessService = (*accessService)(nil)

func (s *accessService) Authorize(connector *models.Connector, link *models.SharedLink, principal models.Principal, op models.Operation) Decision {
	if !connector.IsActive {
		return deny(apperrors.DenyConnectorInactive)
	}
	if !connector.Allows(op.Class) {
		return deny(apperrors.DenyOperationNotAllowed)
	}

	if link != nil {
		// The usability check here is a pre-check; the authoritative
		// check-and-increment is the atomic consume that follows an
		// Allow. Both evaluate the same predicate.
		if !link.Usable(s.now()) {
			return deny(apperrors.DenyLinkUnusable)
		}
		if !link.AllowsPrincipal(principal) {
			return deny(apperrors.DenyPrincipalNotAllowed)
		}
		return allow()
	}

	switch connector.Visibility {
	case models.VisibilityPublic:
		return allow()
	case models.VisibilityOrganization:
		if principal.ID == connector.OwnerID {
			return allow()
		}
		if principal.Anonymous || principal.OrgID == "" {
			return deny(apperrors.DenyNotAuthorized)
		}
		if principal.OrgID != connector.OwnerOrgID {
			return deny(apperrors.DenyCrossOrganization)
		}
		return allow()
	default: // private
		if principal.ID != connector.OwnerID || principal.Anonymous {
			return deny(apperrors.DenyNotAuthorized)
		}
		return allow()
	}
}
