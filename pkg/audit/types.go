package audit

import (
	"time"
)

// Entry is a single append-only authorization audit record. One entry
// is written for every resolution outcome, allowed or denied.
type Entry struct {
	ID           int64      `json:"id"`
	ActorID      int64      `json:"actor_id"`
	TenantID     *int64     `json:"tenant_id,omitempty"`
	Resource     string     `json:"resource"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	Action       string     `json:"action"`
	Allowed      bool       `json:"allowed"`
	DenialReason *string    `json:"denial_reason,omitempty"`
	RequestID    string     `json:"request_id,omitempty"`
	CheckedAt    time.Time  `json:"checked_at"`
}

// Filter narrows audit queries
type Filter struct {
	ActorID  *int64
	TenantID *int64
	Resource string
	Allowed  *bool
	Since    *time.Time
	Until    *time.Time
	Limit    int
}
