package authz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/audit"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// IdentityReader is the identity-store surface the resolver consumes
type IdentityReader interface {
	GetActor(ctx context.Context, actorID int64) (*identity.Actor, error)
	GetMemberships(ctx context.Context, actorID int64) ([]identity.TenantMembership, error)
}

// PermissionStore is the permission-store surface the resolver consumes
type PermissionStore interface {
	CreatePermission(ctx context.Context, p *Permission) error
	FindActorPermission(ctx context.Context, actorID int64, resource Resource, action Action, resourceID *string, tenantID *int64, now time.Time) (*Permission, error)
	FindRolePermission(ctx context.Context, role identity.Role, resource Resource, action Action, tenantID *int64, now time.Time) (*Permission, error)
	RevokePermission(ctx context.Context, id int64) (*Permission, error)
	RevokeAllForResource(ctx context.Context, actorID int64, resource Resource, tenantID *int64) (int64, error)
	ListPermissionsForActor(ctx context.Context, actorID int64, tenantID *int64) ([]Permission, error)
	ListTemplates(ctx context.Context, role identity.Role, tenantID *int64) ([]RoleTemplate, error)
}

// ResolverConfig wires the resolver's collaborators
type ResolverConfig struct {
	Identities IdentityReader
	Store      PermissionStore
	Cache      SnapshotCache
	Recorder   *audit.Recorder
	Logger     *observability.Logger
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
}

// Resolver answers authorization questions. It is safe for concurrent
// use; the only shared mutable state is the snapshot cache.
type Resolver struct {
	identities IdentityReader
	store      PermissionStore
	cache      SnapshotCache
	recorder   *audit.Recorder
	logger     *observability.Logger
	clock      clockwork.Clock
	metrics    *observability.Metrics
	group      singleflight.Group
}

// NewResolver creates a permission resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	cache := cfg.Cache
	if cache == nil {
		cache = NopCache{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.NewRecorder(audit.NopSink{}, cfg.Logger, nil)
	}
	return &Resolver{
		identities: cfg.Identities,
		store:      cfg.Store,
		cache:      cache,
		recorder:   recorder,
		logger:     cfg.Logger.WithComponent("authz"),
		clock:      clock,
		metrics:    cfg.Metrics,
	}
}

// Check resolves one authorization question. It never returns an error
// and never panics: any internal failure becomes a denial. Every
// outcome is recorded to the audit log best-effort.
func (r *Resolver) Check(ctx context.Context, req CheckRequest) Decision {
	now := r.clock.Now().UTC()
	start := time.Now()

	decision := r.safeResolve(ctx, req, now)
	decision.CheckedAt = now

	r.audit(ctx, req, decision)

	if r.metrics != nil {
		r.metrics.AuthzDecisionsTotal.
			WithLabelValues(strconv.FormatBool(decision.Allowed), decision.Reason).Inc()
		r.metrics.AuthzCheckDuration.
			WithLabelValues(string(req.Resource)).Observe(time.Since(start).Seconds())
	}

	return decision
}

// CheckBulk resolves one (resource, action) question across many
// instances. Platform admins and tenant admins short-circuit to
// all-allowed; otherwise each instance is resolved independently, so
// bulk and single-instance answers always agree.
func (r *Resolver) CheckBulk(ctx context.Context, req CheckRequest, resourceIDs []string) map[string]bool {
	results := make(map[string]bool, len(resourceIDs))

	if snap, err := r.snapshot(ctx, req.ActorID); err == nil && !snap.Actor.IsDeleted {
		var reason string
		switch {
		case snap.Actor.IsPlatformAdmin:
			reason = ReasonPlatformAdmin
		case req.TenantID != nil && snap.IsTenantAdmin(*req.TenantID):
			reason = ReasonTenantAdmin
		}
		if reason != "" {
			for _, id := range resourceIDs {
				results[id] = true
			}
			now := r.clock.Now().UTC()
			r.audit(ctx, req, Decision{Allowed: true, Reason: reason, CheckedAt: now})
			return results
		}
	}

	for _, id := range resourceIDs {
		instance := id
		itemReq := req
		itemReq.ResourceID = &instance
		results[id] = r.Check(ctx, itemReq).Allowed
	}

	return results
}

// IsPlatformAdmin reports whether the actor is a non-deleted platform
// admin. A missing actor is simply not an admin.
func (r *Resolver) IsPlatformAdmin(ctx context.Context, actorID int64) (bool, error) {
	snap, err := r.snapshot(ctx, actorID)
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !snap.Actor.IsDeleted && snap.Actor.IsPlatformAdmin, nil
}

// IsTenantAdmin reports whether the actor holds the tenant-admin role
// in the given tenant through an active membership.
func (r *Resolver) IsTenantAdmin(ctx context.Context, actorID, tenantID int64) (bool, error) {
	snap, err := r.snapshot(ctx, actorID)
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !snap.Actor.IsDeleted && snap.IsTenantAdmin(tenantID), nil
}

// CanSoftDelete reports whether the actor may soft-delete an instance
// of the resource.
func (r *Resolver) CanSoftDelete(ctx context.Context, actorID int64, resource Resource, resourceID *string, tenantID *int64) Decision {
	return r.Check(ctx, CheckRequest{
		ActorID:    actorID,
		Resource:   resource,
		Action:     ActionDelete,
		ResourceID: resourceID,
		TenantID:   tenantID,
	})
}

// CanRestore reports whether the actor may restore a soft-deleted
// instance of the resource.
func (r *Resolver) CanRestore(ctx context.Context, actorID int64, resource Resource, resourceID *string, tenantID *int64) Decision {
	return r.Check(ctx, CheckRequest{
		ActorID:    actorID,
		Resource:   resource,
		Action:     ActionRestore,
		ResourceID: resourceID,
		TenantID:   tenantID,
	})
}

// CanHardDelete reports whether the actor may permanently delete
// records. Hard deletion is irreversible, so it is reserved for
// platform admins.
func (r *Resolver) CanHardDelete(ctx context.Context, actorID int64) (bool, error) {
	return r.IsPlatformAdmin(ctx, actorID)
}

// InvalidateActor drops the actor's cached snapshot
func (r *Resolver) InvalidateActor(ctx context.Context, actorID int64) {
	r.cache.Invalidate(ctx, actorID)
}

// safeResolve runs the resolution algorithm, converting a panic to a
// denial. Authorization fails closed, never loud.
func (r *Resolver) safeResolve(ctx context.Context, req CheckRequest, now time.Time) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("panic", rec).
				WithField("actor_id", req.ActorID).
				WithField("resource", string(req.Resource)).
				Error("permission resolution panicked")
			d = Decision{Allowed: false, Reason: ReasonInternalError}
		}
	}()
	return r.resolve(ctx, req, now)
}

// resolve applies precedence: missing/deleted actor, platform admin,
// tenant admin, explicit permission, role permission, deny.
func (r *Resolver) resolve(ctx context.Context, req CheckRequest, now time.Time) Decision {
	snap, err := r.snapshot(ctx, req.ActorID)
	if errors.Is(err, identity.ErrNotFound) {
		return Decision{Allowed: false, Reason: ReasonActorNotFound}
	}
	if err != nil {
		return r.internalDeny(req, err)
	}
	if snap.Actor.IsDeleted {
		return Decision{Allowed: false, Reason: ReasonActorNotFound}
	}

	if snap.Actor.IsPlatformAdmin {
		return Decision{Allowed: true, Scope: ScopeGlobal, Reason: ReasonPlatformAdmin}
	}

	if req.TenantID != nil && snap.IsTenantAdmin(*req.TenantID) {
		return Decision{Allowed: true, Scope: ScopeTenant, Reason: ReasonTenantAdmin}
	}

	perm, err := r.store.FindActorPermission(ctx, req.ActorID, req.Resource, req.Action, req.ResourceID, req.TenantID, now)
	if err != nil {
		return r.internalDeny(req, err)
	}
	if perm != nil {
		return Decision{Allowed: true, Scope: perm.Scope, Reason: ReasonExplicitPermission}
	}

	for _, role := range snap.Roles(req.TenantID) {
		perm, err := r.store.FindRolePermission(ctx, role, req.Resource, req.Action, req.TenantID, now)
		if err != nil {
			return r.internalDeny(req, err)
		}
		if perm != nil {
			return Decision{
				Allowed: true,
				Scope:   perm.Scope,
				Reason:  fmt.Sprintf("granted by role %s", role),
			}
		}
	}

	descriptor := string(req.Resource) + ":" + string(req.Action)
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("missing permission %s", descriptor),
		Missing: []string{descriptor},
	}
}

func (r *Resolver) internalDeny(req CheckRequest, err error) Decision {
	r.logger.WithError(err).
		WithField("actor_id", req.ActorID).
		WithField("resource", string(req.Resource)).
		WithField("action", string(req.Action)).
		Error("permission resolution failed")
	return Decision{Allowed: false, Reason: ReasonInternalError}
}

// snapshot returns the actor's cached snapshot, loading it from the
// identity store on a miss. Concurrent misses for one actor are
// collapsed to a single store load.
func (r *Resolver) snapshot(ctx context.Context, actorID int64) (*Snapshot, error) {
	if snap, ok := r.cache.Get(ctx, actorID); ok {
		if r.metrics != nil {
			r.metrics.ActorCacheHitsTotal.Inc()
		}
		return snap, nil
	}
	if r.metrics != nil {
		r.metrics.ActorCacheMissesTotal.Inc()
	}

	v, err, _ := r.group.Do(strconv.FormatInt(actorID, 10), func() (interface{}, error) {
		actor, err := r.identities.GetActor(ctx, actorID)
		if err != nil {
			return nil, err
		}
		memberships, err := r.identities.GetMemberships(ctx, actorID)
		if err != nil {
			return nil, err
		}
		snap := &Snapshot{
			Actor:       *actor,
			Memberships: memberships,
			CachedAt:    r.clock.Now().UTC(),
		}
		r.cache.Set(ctx, actorID, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (r *Resolver) audit(ctx context.Context, req CheckRequest, d Decision) {
	entry := &audit.Entry{
		ActorID:    req.ActorID,
		TenantID:   req.TenantID,
		Resource:   string(req.Resource),
		ResourceID: req.ResourceID,
		Action:     string(req.Action),
		Allowed:    d.Allowed,
		RequestID:  req.RequestID,
		CheckedAt:  d.CheckedAt,
	}
	if !d.Allowed {
		reason := d.Reason
		entry.DenialReason = &reason
	}
	r.recorder.Record(ctx, entry)
}
