package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/auth"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/services"
)

// IssueLinkRequest for POST body. ExpiresAt and MaxUses are optional;
// omitting both yields a link unbounded on both axes.
type IssueLinkRequest struct {
	Visibility        models.LinkVisibility `json:"visibility,omitempty"`
	AllowedPrincipals []string              `json:"allowed_principals,omitempty"`
	ExpiresAt         *time.Time            `json:"expires_at,omitempty"`
	MaxUses           *int                  `json:"max_uses,omitempty"`
}

// IssueLinkResponse carries the new link plus the ready-to-share URL.
type IssueLinkResponse struct {
	*models.SharedLink
	LinkURL string `json:"link_url"`
}

// ListLinksResponse wraps the link array.
type ListLinksResponse struct {
	Links []*models.SharedLink `json:"links"`
}

// LinksHandler handles shared link management requests.
type LinksHandler struct {
	linkService services.LinkService
	baseURL     string
	logger      *zap.Logger
}

// NewLinksHandler creates a new links handler. baseURL is the externally
// reachable server root used to build shareable link URLs.
func NewLinksHandler(linkService services.LinkService, baseURL string, logger *zap.Logger) *LinksHandler {
	return &LinksHandler{
		linkService: linkService,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
	}
}

// RegisterRoutes registers the links handler's routes on the given mux.
func (h *LinksHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/connectors/{id}/links", authMiddleware.Require(h.Issue))
	mux.HandleFunc("GET /api/connectors/{id}/links", authMiddleware.Require(h.List))
	mux.HandleFunc("POST /api/links/{linkID}/revoke", authMiddleware.Require(h.Revoke))
}

// Issue handles POST /api/connectors/{id}/links. The response is the
// only place the link token is ever returned.
func (h *LinksHandler) Issue(w http.ResponseWriter, r *http.Request) {
	connectorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format"))
		return
	}

	var req IssueLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"))
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	link, err := h.linkService.Issue(r.Context(), connectorID, principal, services.IssueLinkParams{
		Visibility:        req.Visibility,
		AllowedPrincipals: req.AllowedPrincipals,
		ExpiresAt:         req.ExpiresAt,
		MaxUses:           req.MaxUses,
	})
	if err != nil {
		h.logger.Warn("Failed to issue link",
			zap.String("connector_id", connectorID.String()),
			zap.Error(err))
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusCreated, IssueLinkResponse{
		SharedLink: link,
		LinkURL:    h.baseURL + "/api/shared/" + link.ID,
	}))
}

// List handles GET /api/connectors/{id}/links.
func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	connectorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format"))
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	links, err := h.linkService.ListByConnector(r.Context(), connectorID, principal)
	if err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}
	if links == nil {
		links = []*models.SharedLink{}
	}

	h.writeError(WriteJSON(w, http.StatusOK, ListLinksResponse{Links: links}))
}

// Revoke handles POST /api/links/{linkID}/revoke.
func (h *LinksHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	linkID := r.PathValue("linkID")
	if linkID == "" {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_link_id", "Link ID is required"))
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	if err := h.linkService.Revoke(r.Context(), linkID, principal); err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusOK, map[string]bool{"revoked": true}))
}

func (h *LinksHandler) writeError(err error) {
	if err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
