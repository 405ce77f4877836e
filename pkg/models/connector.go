package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the backend family behind a connector. The set is
// closed: adapter dispatch is exhaustive over these values and adding a
// kind requires a code change.
type Kind string

const (
	KindRelational Kind = "relational"
	KindDocument   Kind = "document"
	KindObject     Kind = "object"
	KindHTTP       Kind = "http"
)

// Valid reports whether k is one of the registered kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRelational, KindDocument, KindObject, KindHTTP:
		return true
	}
	return false
}

// OpClass is the coarse permission category an allow-list is defined over.
type OpClass string

const (
	OpRead  OpClass = "read"
	OpWrite OpClass = "write"
)

func (c OpClass) Valid() bool {
	return c == OpRead || c == OpWrite
}

// Visibility controls which principals may dispatch directly against a
// connector (links carry their own visibility).
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityOrganization, VisibilityPublic:
		return true
	}
	return false
}

// Connector is a registered, credential-bearing reference to a real
// backend resource. EncryptedConfig and EncryptedCredentials are opaque
// vault ciphertext; they are never serialized to JSON and no component
// outside the vault holds the plaintext beyond a single dispatch.
type Connector struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	Kind                 Kind       `json:"kind"`
	EncryptedConfig      string     `json:"-"`
	EncryptedCredentials string     `json:"-"`
	AllowedOperations    []OpClass  `json:"allowed_operations"`
	OwnerID              string     `json:"owner_id"`
	OwnerOrgID           string     `json:"owner_org_id,omitempty"`
	Visibility           Visibility `json:"visibility"`
	IsActive             bool       `json:"is_active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Allows reports whether the operation class is on the connector's
// allow-list.
func (c *Connector) Allows(class OpClass) bool {
	for _, op := range c.AllowedOperations {
		if op == class {
			return true
		}
	}
	return false
}
