package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
)

// ErrInvalidGrant marks a malformed grant request
var ErrInvalidGrant = errors.New("invalid grant")

// GrantRequest describes a new permission grant
type GrantRequest struct {
	ActorID    *int64            `json:"actor_id,omitempty"`
	Role       *identity.Role    `json:"role,omitempty"`
	TenantID   *int64            `json:"tenant_id,omitempty"`
	Resource   Resource          `json:"resource"`
	ResourceID *string           `json:"resource_id,omitempty"`
	Action     Action            `json:"action"`
	Scope      Scope             `json:"scope"`
	Conditions map[string]string `json:"conditions,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	GrantedBy  *int64            `json:"-"`
}

func (g *GrantRequest) validate() error {
	if (g.ActorID == nil) == (g.Role == nil) {
		return fmt.Errorf("%w: exactly one of actor_id or role must be set", ErrInvalidGrant)
	}
	if g.Role != nil && !g.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidGrant, *g.Role)
	}
	if !g.Resource.Valid() {
		return fmt.Errorf("%w: invalid resource %q", ErrInvalidGrant, g.Resource)
	}
	if !g.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidGrant, g.Action)
	}
	if !g.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidGrant, g.Scope)
	}
	return nil
}

// Grant creates an actor-targeted permission and invalidates the
// actor's snapshot once the row is durable.
func (r *Resolver) Grant(ctx context.Context, req GrantRequest) (*Permission, error) {
	if req.ActorID == nil {
		return nil, fmt.Errorf("%w: actor_id is required", ErrInvalidGrant)
	}
	return r.grant(ctx, req)
}

// GrantRolePermission creates a role-targeted permission. Role grants
// do not touch the per-actor snapshot cache: role permissions are read
// from the store on every check.
func (r *Resolver) GrantRolePermission(ctx context.Context, req GrantRequest) (*Permission, error) {
	if req.Role == nil {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidGrant)
	}
	return r.grant(ctx, req)
}

func (r *Resolver) grant(ctx context.Context, req GrantRequest) (*Permission, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &Permission{
		ActorID:    req.ActorID,
		Role:       req.Role,
		TenantID:   req.TenantID,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Action:     req.Action,
		Scope:      req.Scope,
		Conditions: req.Conditions,
		ExpiresAt:  req.ExpiresAt,
		CreatedBy:  req.GrantedBy,
	}
	if err := r.store.CreatePermission(ctx, p); err != nil {
		return nil, err
	}

	if p.ActorID != nil {
		r.cache.Invalidate(ctx, *p.ActorID)
	}

	return p, nil
}

// Revoke soft-revokes a grant. Revoking an already-inactive grant is a
// no-op; a missing grant is ErrPermissionNotFound.
func (r *Resolver) Revoke(ctx context.Context, permissionID int64) error {
	p, err := r.store.RevokePermission(ctx, permissionID)
	if err != nil {
		return err
	}

	if p.ActorID != nil {
		r.cache.Invalidate(ctx, *p.ActorID)
	}

	return nil
}

// RevokeAllForResource soft-revokes every active grant the actor holds
// on a resource kind, optionally limited to one tenant.
func (r *Resolver) RevokeAllForResource(ctx context.Context, actorID int64, resource Resource, tenantID *int64) (int64, error) {
	if !resource.Valid() {
		return 0, fmt.Errorf("%w: invalid resource %q", ErrInvalidGrant, resource)
	}

	count, err := r.store.RevokeAllForResource(ctx, actorID, resource, tenantID)
	if err != nil {
		return 0, err
	}

	r.cache.Invalidate(ctx, actorID)
	return count, nil
}

// GetPermissions returns the actor's active grants
func (r *Resolver) GetPermissions(ctx context.Context, actorID int64, tenantID *int64) ([]Permission, error) {
	return r.store.ListPermissionsForActor(ctx, actorID, tenantID)
}

// ApplyRoleTemplate materializes every template for the role as a
// concrete actor-targeted permission in the given tenant. Templates are
// a provisioning mechanism; resolution never reads them.
func (r *Resolver) ApplyRoleTemplate(ctx context.Context, actorID int64, role identity.Role, tenantID int64, grantedBy *int64) ([]Permission, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidGrant, role)
	}

	templates, err := r.store.ListTemplates(ctx, role, &tenantID)
	if err != nil {
		return nil, err
	}

	created := make([]Permission, 0, len(templates))
	for _, t := range templates {
		p := &Permission{
			ActorID:    &actorID,
			TenantID:   &tenantID,
			Resource:   t.Resource,
			Action:     t.Action,
			Scope:      t.DefaultScope,
			Conditions: t.DefaultConditions,
			CreatedBy:  grantedBy,
		}
		if err := r.store.CreatePermission(ctx, p); err != nil {
			return created, fmt.Errorf("failed to apply template %d: %w", t.ID, err)
		}
		created = append(created, *p)
	}

	if len(created) > 0 {
		r.cache.Invalidate(ctx, actorID)
	}

	return created, nil
}
