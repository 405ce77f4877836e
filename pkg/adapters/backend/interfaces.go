// Package backend implements the uniform execution contract over the
// four connector kinds: relational SQL, document store, object store,
// and generic HTTP API. Adapters receive decrypted config and
// credentials scoped to a single call and never retain them.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// Adapter is the uniform contract every backend kind implements.
type Adapter interface {
	// ValidateConfig checks a connector definition at creation time,
	// before any secret is accepted or sealed. Returns an error
	// wrapping apperrors.ErrConfig on a bad definition.
	ValidateConfig(config map[string]any) error

	// Execute runs one operation against the backend. config and
	// credentials are decrypted values whose lifetime is bounded to
	// this call; implementations must not cache them or any connection
	// built from them. Failures are *apperrors.BackendError.
	Execute(ctx context.Context, config, credentials map[string]any, op models.Operation) (*Result, error)
}

// Result is the backend-native result shape. One field family is
// populated per kind: Columns/Rows/RowsAffected for relational,
// Docs for document, Keys/Content for object, StatusCode/Body for HTTP.
type Result struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowsAffected int64            `json:"rows_affected,omitempty"`

	Docs map[string]json.RawMessage `json:"docs,omitempty"`

	Keys    []string `json:"keys,omitempty"`
	Content []byte   `json:"content,omitempty"`

	StatusCode int             `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Limits bounds every adapter call.
type Limits struct {
	// Timeout caps a single backend call. Each adapter applies it as
	// a context deadline at the top of Execute.
	Timeout time.Duration
	// MaxRows caps result row/document counts; exceeding it is a
	// too-large backend error.
	MaxRows int
	// MaxResponseBytes caps HTTP and object payload sizes.
	MaxResponseBytes int64
}

// DefaultLimits are used when a limit field is left zero.
var DefaultLimits = Limits{
	Timeout:          30 * time.Second,
	MaxRows:          1000,
	MaxResponseBytes: 4 << 20,
}

func (l Limits) withDefaults() Limits {
	if l.Timeout <= 0 {
		l.Timeout = DefaultLimits.Timeout
	}
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultLimits.MaxRows
	}
	if l.MaxResponseBytes <= 0 {
		l.MaxResponseBytes = DefaultLimits.MaxResponseBytes
	}
	return l
}

// classifyErr collapses an adapter failure into the closed BackendError
// set. Raw error text stays wrapped in-process and is never serialized.
func classifyErr(ctx context.Context, err error) *apperrors.BackendError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.NewBackendError(apperrors.BackendTimeout, err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return apperrors.NewBackendError(apperrors.BackendNetwork, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.NewBackendError(apperrors.BackendTimeout, err)
		}
		return apperrors.NewBackendError(apperrors.BackendNetwork, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return apperrors.NewBackendError(apperrors.BackendNetwork, err)
	}
	return apperrors.NewBackendError(apperrors.BackendUpstreamRejected, err)
}

// configErr wraps a validation failure so callers can errors.Is it
// against apperrors.ErrConfig.
func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfig, fmt.Sprintf(format, args...))
}

// stringField reads a required string field from a config map.
func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", configErr("missing %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", configErr("%q must be a non-empty string", key)
	}
	return s, nil
}

// optStringField reads an optional string field, returning "" if absent.
func optStringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// intField reads an optional numeric field (JSON numbers decode as
// float64), returning def when absent.
func intField(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
