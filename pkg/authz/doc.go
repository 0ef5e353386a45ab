// Package authz implements permission resolution for the scheduling
// platform.
//
// # Resolution precedence
//
// Check answers one authorization question with a first-match-wins
// precedence chain:
//
//  1. Missing or soft-deleted actor: deny.
//  2. Platform admin: allow at global scope.
//  3. Tenant-admin role in the requested tenant: allow at tenant scope.
//  4. Active, unexpired explicit (actor-targeted) permission matching
//     resource, action, instance and tenant: allow at the grant's scope.
//  5. Active, unexpired role-targeted permission for any role the actor
//     holds through active memberships (roles visited in sorted order):
//     allow at the grant's scope.
//  6. Otherwise: deny, naming the missing resource:action descriptor.
//
// Every outcome is written to the authorization audit log best-effort.
// Resolution fails closed: an internal error or panic becomes a generic
// denial, never an error to the caller.
//
// # Caching
//
// Only the actor snapshot (identity flags plus tenant memberships) is
// cached, under a fixed TTL. Durable permissions are read from the
// store on every check. Actor-targeted mutations invalidate the actor's
// snapshot after the store write commits; writes that bypass this
// package converge within one TTL window.
//
// # Grants
//
// Permissions target exactly one of an actor or a role. Revocation is
// soft: rows flip is_active and are never deleted, preserving audit
// integrity. Expiry is evaluated at resolution time; there is no
// background sweep for expired grants.
package authz
