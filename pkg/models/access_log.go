package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a dispatch attempt in the access log. A denied
// request never reached the vault or a backend; an allowed-failure was
// authorized but the backend call itself failed.
type Outcome string

const (
	OutcomeAllowedSuccess Outcome = "allowed-success"
	OutcomeAllowedFailure Outcome = "allowed-failure"
	OutcomeDenied         Outcome = "denied"
)

// ReasonCancelled marks an allowed-failure caused by caller disconnect
// during backend execution. Cancellation never skips auditing.
const ReasonCancelled = "cancelled"

// AccessLogEntry is one row of the append-only dispatch ledger. Entries
// are immutable once written and never reference decrypted secrets.
type AccessLogEntry struct {
	ID          uuid.UUID `json:"id"`
	ConnectorID uuid.UUID `json:"connector_id"`
	LinkID      *string   `json:"link_id,omitempty"`
	PrincipalID *string   `json:"principal_id,omitempty"`
	Operation   string    `json:"operation"`
	OpClass     OpClass   `json:"op_class"`
	Outcome     Outcome   `json:"outcome"`
	Reason      *string   `json:"reason,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
