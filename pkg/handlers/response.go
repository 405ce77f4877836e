// Package handlers exposes the proxy subsystem over HTTP: connector
// management, link issuance, dispatch, and the audit ledger.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteAppError maps the service error taxonomy to HTTP. Everything a
// caller sees is an enumerable code; backend and vault detail never
// leaves the process.
func WriteAppError(w http.ResponseWriter, err error) error {
	var denial *apperrors.Denial
	if errors.As(err, &denial) {
		return ErrorResponse(w, http.StatusForbidden, string(denial.Reason), "request denied")
	}

	var linkErr *apperrors.LinkError
	if errors.As(err, &linkErr) {
		return ErrorResponse(w, http.StatusForbidden, string(linkErr.Kind), "link unusable")
	}

	var backendErr *apperrors.BackendError
	if errors.As(err, &backendErr) {
		status := http.StatusBadGateway
		if backendErr.Kind == apperrors.BackendTimeout {
			status = http.StatusGatewayTimeout
		}
		return ErrorResponse(w, status, string(backendErr.Kind), "backend request failed")
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		return ErrorResponse(w, http.StatusConflict, "conflict", "Resource already exists")
	case errors.Is(err, apperrors.ErrForbidden):
		return ErrorResponse(w, http.StatusForbidden, "forbidden", "Not allowed")
	case errors.Is(err, apperrors.ErrConfig):
		// Config errors carry validation detail that is safe to return.
		return ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, apperrors.ErrVault):
		return ErrorResponse(w, http.StatusInternalServerError, "vault_error", "Credential operation failed")
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
