// Package identity exposes the actor and tenant-membership model the
// access-control core reads, plus the login bookkeeping it writes.
package identity

import (
	"time"
)

// Role is a closed set of membership roles
type Role string

const (
	RoleTenantAdmin Role = "tenant_admin"
	RoleScheduler   Role = "scheduler"
	RoleApprover    Role = "approver"
	RoleMember      Role = "member"
	RoleAuditor     Role = "auditor"
)

// AllRoles returns every recognized role
func AllRoles() []Role {
	return []Role{RoleTenantAdmin, RoleScheduler, RoleApprover, RoleMember, RoleAuditor}
}

// Valid reports whether the role is one of the recognized roles
func (r Role) Valid() bool {
	switch r {
	case RoleTenantAdmin, RoleScheduler, RoleApprover, RoleMember, RoleAuditor:
		return true
	}
	return false
}

// Actor is a principal that can be authorized or impersonated
type Actor struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	DisplayName         string     `json:"display_name"`
	IsPlatformAdmin     bool       `json:"is_platform_admin"`
	IsActive            bool       `json:"is_active"`
	IsDeleted           bool       `json:"is_deleted"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedOutUntil      *time.Time `json:"locked_out_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// LockedOut reports whether the actor is locked out as of now
func (a *Actor) LockedOut(now time.Time) bool {
	return a.LockedOutUntil != nil && a.LockedOutUntil.After(now)
}

// TenantMembership ties an actor to a tenant with a set of roles.
// An inactive membership contributes no roles to authorization.
type TenantMembership struct {
	ID        int64     `json:"id"`
	ActorID   int64     `json:"actor_id"`
	TenantID  int64     `json:"tenant_id"`
	Roles     []Role    `json:"roles"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRole reports whether an active membership carries the given role
func (m *TenantMembership) HasRole(role Role) bool {
	if !m.IsActive {
		return false
	}
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}
