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

// ProxyHandler dispatches operations through connectors and shared
// links. The request body is the operation envelope; the connector's
// real location and credentials never appear in either direction.
type ProxyHandler struct {
	dispatcher services.DispatchService
	logger     *zap.Logger
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(dispatcher services.DispatchService, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterRoutes registers the proxy handler's routes on the given mux.
// Both routes take optional auth: direct dispatch against a public
// connector and public-link dispatch work anonymously.
func (h *ProxyHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/proxy/{id}", authMiddleware.Optional(h.DispatchDirect))
	mux.HandleFunc("POST /api/shared/{linkID}", authMiddleware.Optional(h.DispatchLink))
}

// DispatchDirect handles POST /api/proxy/{id}.
func (h *ProxyHandler) DispatchDirect(w http.ResponseWriter, r *http.Request) {
	connectorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format"))
		return
	}

	op, ok := h.decodeOperation(w, r)
	if !ok {
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	result, err := h.dispatcher.DispatchDirect(r.Context(), connectorID, principal, op)
	if err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusOK, result))
}

// DispatchLink handles POST /api/shared/{linkID}.
func (h *ProxyHandler) DispatchLink(w http.ResponseWriter, r *http.Request) {
	linkID := r.PathValue("linkID")
	if linkID == "" {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_link_id", "Link ID is required"))
		return
	}

	op, ok := h.decodeOperation(w, r)
	if !ok {
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	result, err := h.dispatcher.DispatchLink(r.Context(), linkID, principal, op)
	if err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}

	h.writeError(WriteJSON(w, http.StatusOK, result))
}

func (h *ProxyHandler) decodeOperation(w http.ResponseWriter, r *http.Request) (models.Operation, bool) {
	var op models.Operation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid operation envelope"))
		return models.Operation{}, false
	}
	return op, true
}

func (h *ProxyHandler) writeError(err error) {
	if err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
