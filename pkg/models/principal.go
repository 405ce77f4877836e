package models

// Principal is the identity attempting an operation. Anonymous callers
// (no bearer token) get the zero principal with Anonymous set.
type Principal struct {
	ID        string `json:"id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

// AnonymousPrincipal is the identity used when no auth token is present.
func AnonymousPrincipal() Principal {
	return Principal{Anonymous: true}
}
