package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/auth"
	"github.com/proxylink-dev/proxylink/pkg/models"
	"github.com/proxylink-dev/proxylink/pkg/services"
)

// ListAccessLogResponse wraps the ledger page.
type ListAccessLogResponse struct {
	Entries []*models.AccessLogEntry `json:"entries"`
}

// AccessLogHandler serves the append-only dispatch ledger.
type AccessLogHandler struct {
	auditService services.AuditService
	logger       *zap.Logger
}

// NewAccessLogHandler creates a new access log handler.
func NewAccessLogHandler(auditService services.AuditService, logger *zap.Logger) *AccessLogHandler {
	return &AccessLogHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// RegisterRoutes registers the access log handler's routes on the given mux.
func (h *AccessLogHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/connectors/{id}/access-log", authMiddleware.Require(h.List))
}

// List handles GET /api/connectors/{id}/access-log. Supports limit and
// offset query parameters; newest entries first.
func (h *AccessLogHandler) List(w http.ResponseWriter, r *http.Request) {
	connectorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(ErrorResponse(w, http.StatusBadRequest, "invalid_connector_id", "Invalid connector ID format"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	principal := auth.PrincipalFromContext(r.Context())
	entries, err := h.auditService.ListByConnector(r.Context(), connectorID, principal, limit, offset)
	if err != nil {
		h.writeError(WriteAppError(w, err))
		return
	}
	if entries == nil {
		entries = []*models.AccessLogEntry{}
	}

	h.writeError(WriteJSON(w, http.StatusOK, ListAccessLogResponse{Entries: entries}))
}

func (h *AccessLogHandler) writeError(err error) {
	if err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
