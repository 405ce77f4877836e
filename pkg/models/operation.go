package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ObjectAction is the verb set for object-store operations.
type ObjectAction string

const (
	ObjectGet    ObjectAction = "get"
	ObjectPut    ObjectAction = "put"
	ObjectDelete ObjectAction = "delete"
	ObjectList   ObjectAction = "list"
)

// Operation is the backend-agnostic envelope dispatched to an adapter.
// Relational/document backends use Query/Params, HTTP backends use
// Method/Path/Query/Body, object backends use Action/Key/Content.
// Class must always be set; adapters trust it only after the access
// controller has validated it against the connector allow-list.
type Operation struct {
	Class OpClass `json:"op_class"`

	// Relational / document
	Query  string `json:"query,omitempty"`
	Params []any  `json:"params,omitempty"`

	// HTTP API
	Method string          `json:"method,omitempty"`
	Path   string          `json:"path,omitempty"`
	Values url.Values      `json:"values,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`

	// Object store
	Action  ObjectAction `json:"action,omitempty"`
	Key     string       `json:"key,omitempty"`
	Content []byte       `json:"content,omitempty"`
}

// Describe returns a short, secret-free description of the operation for
// the access log ("query", "GET /users", "put objects/report.csv").
func (o Operation) Describe(kind Kind) string {
	switch kind {
	case KindHTTP:
		return fmt.Sprintf("%s %s", strings.ToUpper(o.Method), o.Path)
	case KindObject:
		return fmt.Sprintf("%s %s", o.Action, o.Key)
	default:
		return "query"
	}
}

// Validate checks that the envelope carries the fields the connector
// kind requires. It never inspects credentials or config.
func (o Operation) Validate(kind Kind) error {
	if !o.Class.Valid() {
		return fmt.Errorf("invalid operation class %q", o.Class)
	}
	switch kind {
	case KindRelational, KindDocument:
		if strings.TrimSpace(o.Query) == "" {
			return fmt.Errorf("query is required for %s connectors", kind)
		}
	case KindHTTP:
		if o.Method == "" {
			return fmt.Errorf("method is required for http connectors")
		}
	case KindObject:
		switch o.Action {
		case ObjectGet, ObjectPut, ObjectDelete:
			if o.Key == "" {
				return fmt.Errorf("key is required for object %s", o.Action)
			}
		case ObjectList:
		default:
			return fmt.Errorf("invalid object action %q", o.Action)
		}
	default:
		return fmt.Errorf("unknown connector kind %q", kind)
	}
	return nil
}
