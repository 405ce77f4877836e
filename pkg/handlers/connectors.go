package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/auth"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/services"
)

// CreateConnectorRequest for POST body. Config and credentials are
// accepted once at registration and never returned by any endpoint.
type CreateConnectorRequest struct {
	Name              string            `json:"name"`
	Kind              string            `json:"kind"`
	Config            map[string]any    `json:"config"`
	Credentials       map[string]any    `json:"credentials"`
	AllowedOperations []models.OpClass  `json:"allowed_operations"`
	Visibility        models.Visibility `json:"visibility"`
}

// ListConnectorsResponse wraps the connector array.
type ListConnectorsResponse struct {
	Connectors []*models.Connector `json:"connectors"`
}

// ConnectorsHandler handles connector management requests.
type ConnectorsHandler struct {
	connectorService services.ConnectorService
	logger           *zap.Logger
}

// NewConnectorsHandler creates a new connectors handler.
func NewConnectorsHandler(connectorService services.ConnectorService, logger *zap.Logger) *ConnectorsHandler {
	return &ConnectorsHandler{
		connectorService: connectorService,
		logger:           logger,
	}
}

// RegisterRoutes registers the connectors handler's routes on the given mux.
func (h *ConnectorsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/connectors", authMiddleware.Require(h.Create))
	mux.HandleFunc("GET /api/connectors", authMiddleware.Require(h.List))
	mux.HandleFunc("GET /api/connectors/{id}", authMiddleware.Require(h.Get))
	mux.HandleFunc("POST /api/connectors/{id}/deactivate", authMiddleware.Require(h.Deactivate))
	mux.HandleFunc("POST /api/admin/reseal", authMiddleware.RequireAdmin(h.Reseal))
}

// Create handles POST /api/connectors.
func (h *ConnectorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"))
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	connector, err := h.connectorService.Create(r.Context(), principal, services.CreateConnectorParams{
		Name:              req.Name,
		Kind:              models.Kind(req.Kind),
		Config:            req.Config,
		Credentials:       req.Credentials,
		AllowedOperations: req.AllowedOperations,
		Visibility:        req.Visibility,
	})
	if err != nil {
		h.logger.Warn("Failed to create connector", zap.String("principal_id", principal.ID), zap.Error(err))
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusCreated, connector))
}

// List handles GET /api/connectors.
func (h *ConnectorsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	connectors, err := h.connectorService.List(r.Context(), principal)
	if err != nil {
		h.logger.Error("Failed to list connectors", zap.Error(err))
		h.writeError(WriteAppError(w, err))
		return
	}
	if connectors == nil {
		connectors = []*models.Connector{}
	}

	h.writeError(WriteJSON(w, http.StatusOK, ListConnectorsResponse{Connectors: connectors}))
}

// Get handles GET /api/connectors/{id}. Metadata only; sealed blobs are
// excluded from serialization.
func (h *ConnectorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format"))
		return
	}

	connector, err := h.connectorService.Resolve(r.Context(), id)
	if err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	if !principal.Admin && principal.ID != connector.OwnerID {
		h.writeError(ErrorResponse(w, http.StatusForbidden, "forbidden", "Not allowed"))
		return
	}

	h.writeError(WriteJSON(w, http.StatusOK, connector))
}

// Deactivate handles POST /api/connectors/{id}/deactivate.
func (h *ConnectorsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format"))
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	if err := h.connectorService.Deactivate(r.Context(), id, principal); err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusOK, map[string]bool{"deactivated": true}))
}

// Reseal handles POST /api/admin/reseal. Re-encrypts every connector
// under the active vault key generation.
func (h *ConnectorsHandler) Reseal(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	result, err := h.connectorService.ResealAll(r.Context(), principal)
	if err != nil {
		h.logger.Error("Reseal pass failed", zap.Error(err))
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusOK, result))
}

func (h *ConnectorsHandler) writeError(err error) {
	if err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
