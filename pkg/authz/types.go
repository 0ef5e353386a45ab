package authz

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
)

// Action is a closed set of verbs a permission can grant
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
	ActionAssign  Action = "assign"
	ActionManage  Action = "manage"
)

// Valid reports whether the action is one of the recognized verbs
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionRestore,
		ActionExport, ActionApprove, ActionAssign, ActionManage:
		return true
	}
	return false
}

// Scope is the breadth at which a permission applies
type Scope string

const (
	ScopeOwn    Scope = "own"    // Actor's own records only
	ScopeTenant Scope = "tenant" // Everything within one tenant
	ScopeGlobal Scope = "global" // System-wide
)

// Valid reports whether the scope is one of the recognized scopes
func (s Scope) Valid() bool {
	switch s {
	case ScopeOwn, ScopeTenant, ScopeGlobal:
		return true
	}
	return false
}

// Resource identifies a category of protected object, e.g. "projects".
// Resource kinds are an open set: new kinds are added by callers without
// changes here, so this is a validated string rather than an enum.
type Resource string

var resourcePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ParseResource validates a resource kind identifier
func ParseResource(s string) (Resource, error) {
	if !resourcePattern.MatchString(s) {
		return "", fmt.Errorf("invalid resource identifier %q", s)
	}
	return Resource(s), nil
}

// Valid reports whether the resource identifier is well-formed
func (r Resource) Valid() bool {
	return resourcePattern.MatchString(string(r))
}

// Permission is a durable grant of (action, resource) at a scope,
// targeting exactly one of an actor or a role. A nil ResourceID matches
// any instance of the resource kind; a nil TenantID matches any tenant
// context. Revocation is soft (IsActive=false); rows are never deleted.
type Permission struct {
	ID         int64             `json:"id"`
	ActorID    *int64            `json:"actor_id,omitempty"`
	Role       *identity.Role    `json:"role,omitempty"`
	TenantID   *int64            `json:"tenant_id,omitempty"`
	Resource   Resource          `json:"resource"`
	ResourceID *string           `json:"resource_id,omitempty"`
	Action     Action            `json:"action"`
	Scope      Scope             `json:"scope"`
	Conditions map[string]string `json:"conditions,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	IsActive   bool              `json:"is_active"`
	CreatedAt  time.Time         `json:"created_at"`
	CreatedBy  *int64            `json:"created_by,omitempty"`
}

// Expired reports whether the permission has a past expiry. An expired
// permission is treated as absent regardless of IsActive.
func (p *Permission) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// String returns the resource:action descriptor
func (p *Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// RoleTemplate is a reusable default grant applied at provisioning time.
// Templates are never consulted during resolution; applying one
// materializes a concrete actor-targeted Permission row. A nil TenantID
// means the template is system-wide.
type RoleTemplate struct {
	ID                int64             `json:"id"`
	Role              identity.Role     `json:"role"`
	TenantID          *int64            `json:"tenant_id,omitempty"`
	Resource          Resource          `json:"resource"`
	Action            Action            `json:"action"`
	DefaultScope      Scope             `json:"default_scope"`
	DefaultConditions map[string]string `json:"default_conditions,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// CheckRequest is one authorization question
type CheckRequest struct {
	ActorID    int64    `json:"actor_id"`
	Resource   Resource `json:"resource"`
	Action     Action   `json:"action"`
	ResourceID *string  `json:"resource_id,omitempty"`
	TenantID   *int64   `json:"tenant_id,omitempty"`
	RequestID  string   `json:"-"`
}

// Decision is the outcome of a permission check
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Scope     Scope     `json:"scope,omitempty"`
	Reason    string    `json:"reason"`
	Missing   []string  `json:"missing,omitempty"` // resource:action descriptors when denied
	CheckedAt time.Time `json:"checked_at"`
}

// Well-known decision reasons
const (
	ReasonActorNotFound      = "actor not found"
	ReasonPlatformAdmin      = "platform admin"
	ReasonTenantAdmin        = "tenant admin"
	ReasonExplicitPermission = "explicit permission"
	ReasonInternalError      = "internal authorization error"
)

// Snapshot is the cached view of an actor: identity flags plus tenant
// memberships. Durable permissions are not part of the snapshot; they
// are read from the store on every check.
type Snapshot struct {
	Actor       identity.Actor              `json:"actor"`
	Memberships []identity.TenantMembership `json:"memberships"`
	CachedAt    time.Time                   `json:"cached_at"`
}

// IsTenantAdmin reports whether the snapshot holds the tenant-admin role
// in the given tenant through an active membership.
func (s *Snapshot) IsTenantAdmin(tenantID int64) bool {
	for i := range s.Memberships {
		m := &s.Memberships[i]
		if m.TenantID == tenantID && m.HasRole(identity.RoleTenantAdmin) {
			return true
		}
	}
	return false
}

// Roles returns the distinct roles the actor holds through active
// memberships, optionally filtered to one tenant, sorted by name so
// role-permission resolution order is reproducible.
func (s *Snapshot) Roles(tenantID *int64) []identity.Role {
	seen := make(map[identity.Role]bool)
	var roles []identity.Role

	for i := range s.Memberships {
		m := &s.Memberships[i]
		if !m.IsActive {
			continue
		}
		if tenantID != nil && m.TenantID != *tenantID {
			continue
		}
		for _, r := range m.Roles {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
