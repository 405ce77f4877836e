// Package apperrors defines the error taxonomy shared across the proxy
// subsystem. Everything callers can observe is one of the closed sets
// below; raw backend errors never cross a package boundary.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")

	// ErrVault covers every seal/unseal failure. Deliberately generic:
	// a decryption error means tampering or a key mismatch, and the
	// details stay out of responses and logs.
	ErrVault = errors.New("vault operation failed")

	// ErrConfig is returned when a connector definition fails adapter
	// validation at creation time.
	ErrConfig = errors.New("invalid connector configuration")
)

// BackendKind is the closed set of externally visible backend failure
// sub-kinds. The caller sees the sub-kind and nothing else.
type BackendKind string

const (
	BackendTimeout          BackendKind = "timeout"
	BackendTooLarge         BackendKind = "too-large"
	BackendUpstreamRejected BackendKind = "upstream-rejected"
	BackendNetwork          BackendKind = "network"
)

// BackendError wraps a backend adapter failure. The underlying error is
// retained for wrapped inspection in-process but is never serialized.
type BackendError struct {
	Kind BackendKind
	err  error
}

func NewBackendError(kind BackendKind, err error) *BackendError {
	return &BackendError{Kind: kind, err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %s", e.Kind)
}

func (e *BackendError) Unwrap() error { return e.err }

// Retryable reports whether the caller may retry with backoff.
// Upstream rejections are not retried automatically.
func (e *BackendError) Retryable() bool {
	return e.Kind == BackendTimeout || e.Kind == BackendNetwork
}

// LinkKind classifies why a shared link could not be used.
type LinkKind string

const (
	LinkExpired             LinkKind = "expired"
	LinkExhausted           LinkKind = "exhausted"
	LinkRevoked             LinkKind = "revoked"
	LinkPrincipalNotAllowed LinkKind = "principal-not-allowed"
)

// LinkError is surfaced as a denial; it is never retried.
type LinkError struct {
	Kind LinkKind
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link unusable: %s", e.Kind)
}

// DenialReason is the closed set of policy denial codes. The audit log
// consumes these verbatim.
type DenialReason string

const (
	DenyConnectorInactive   DenialReason = "connector-inactive"
	DenyOperationNotAllowed DenialReason = "operation-not-allowed"
	DenyLinkUnusable        DenialReason = "link-unusable"
	DenyPrincipalNotAllowed DenialReason = "principal-not-allowed"
	DenyNotAuthorized       DenialReason = "not-authorized"
	DenyCrossOrganization   DenialReason = "cross-organization"
)

// Denial is the Access Controller's rejection. Reason is an enumerable
// code, never free text.
type Denial struct {
	Reason DenialReason
}

func (e *Denial) Error() string {
	return fmt.Sprintf("denied: %s", e.Reason)
}
