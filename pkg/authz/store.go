package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
)

// ErrPermissionNotFound is returned when the referenced permission row
// does not exist.
var ErrPermissionNotFound = errors.New("permission not found")

// Store handles permission and role-template persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new permission store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const permissionColumns = `id, actor_id, role, tenant_id, resource, resource_id, action, scope,
	       conditions, expires_at, is_active, created_at, created_by`

// CreatePermission inserts a new grant. Exactly one of ActorID or Role
// must be set; the caller validates before reaching the store.
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	conditions, err := marshalConditions(p.Conditions)
	if err != nil {
		return err
	}

	var role *string
	if p.Role != nil {
		r := string(*p.Role)
		role = &r
	}

	query := `
		INSERT INTO permissions
			(actor_id, role, tenant_id, resource, resource_id, action, scope, conditions, expires_at, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		p.ActorID, role, p.TenantID, string(p.Resource), p.ResourceID,
		string(p.Action), string(p.Scope), conditions, p.ExpiresAt, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}

	p.IsActive = true
	return nil
}

// FindActorPermission returns the first active, unexpired actor-targeted
// permission matching the request, or nil when none matches. A row with
// resource_id or tenant_id NULL matches any instance or tenant; rows
// pinned to an instance or tenant win over wildcard rows.
func (s *Store) FindActorPermission(ctx context.Context, actorID int64, resource Resource, action Action, resourceID *string, tenantID *int64, now time.Time) (*Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM permissions
		WHERE actor_id = $1
		  AND resource = $2
		  AND action = $3
		  AND is_active = TRUE
		  AND (resource_id IS NULL OR resource_id = $4)
		  AND (tenant_id IS NULL OR tenant_id = $5)
		  AND (expires_at IS NULL OR expires_at > $6)
		ORDER BY (resource_id IS NOT NULL) DESC, (tenant_id IS NOT NULL) DESC, id ASC
		LIMIT 1
	`
	return s.findPermission(ctx, query, actorID, string(resource), string(action), resourceID, tenantID, now)
}

// FindRolePermission returns the first active, unexpired role-targeted
// permission matching the request, or nil when none matches.
func (s *Store) FindRolePermission(ctx context.Context, role identity.Role, resource Resource, action Action, tenantID *int64, now time.Time) (*Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM permissions
		WHERE role = $1
		  AND resource = $2
		  AND action = $3
		  AND is_active = TRUE
		  AND (tenant_id IS NULL OR tenant_id = $4)
		  AND (expires_at IS NULL OR expires_at > $5)
		ORDER BY (tenant_id IS NOT NULL) DESC, id ASC
		LIMIT 1
	`
	return s.findPermission(ctx, query, string(role), string(resource), string(action), tenantID, now)
}

func (s *Store) findPermission(ctx context.Context, query string, args ...interface{}) (*Permission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query permission: %w", err)
	}
	return p, nil
}

// RevokePermission soft-revokes a grant and returns the revoked row.
// Revoking an already-inactive permission is a no-op, not an error.
func (s *Store) RevokePermission(ctx context.Context, id int64) (*Permission, error) {
	query := `
		UPDATE permissions
		SET is_active = FALSE
		WHERE id = $1
		RETURNING ` + permissionColumns + `
	`
	p, err := scanPermission(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to revoke permission: %w", err)
	}
	return p, nil
}

// RevokeAllForResource soft-revokes every active actor-targeted grant on
// a resource kind, optionally limited to one tenant. Returns the number
// of rows revoked.
func (s *Store) RevokeAllForResource(ctx context.Context, actorID int64, resource Resource, tenantID *int64) (int64, error) {
	query := `
		UPDATE permissions
		SET is_active = FALSE
		WHERE actor_id = $1
		  AND resource = $2
		  AND is_active = TRUE
	`
	args := []interface{}{actorID, string(resource)}
	if tenantID != nil {
		query += ` AND tenant_id = $3`
		args = append(args, *tenantID)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke permissions: %w", err)
	}
	return result.RowsAffected()
}

// ListPermissionsForActor returns the actor's active grants, newest
// first, optionally limited to one tenant (tenant-wildcard rows are
// always included).
func (s *Store) ListPermissionsForActor(ctx context.Context, actorID int64, tenantID *int64) ([]Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM permissions
		WHERE actor_id = $1
		  AND is_active = TRUE
	`
	args := []interface{}{actorID}
	if tenantID != nil {
		query += ` AND (tenant_id IS NULL OR tenant_id = $2)`
		args = append(args, *tenantID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, *p)
	}

	return permissions, rows.Err()
}

// CreateTemplate inserts a role-permission template
func (s *Store) CreateTemplate(ctx context.Context, t *RoleTemplate) error {
	conditions, err := marshalConditions(t.DefaultConditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO role_permission_templates
			(role, tenant_id, resource, action, default_scope, default_conditions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		string(t.Role), t.TenantID, string(t.Resource), string(t.Action),
		string(t.DefaultScope), conditions,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role template: %w", err)
	}
	return nil
}

// ListTemplates returns the templates for a role: system-wide templates
// plus, when a tenant is given, that tenant's own templates.
func (s *Store) ListTemplates(ctx context.Context, role identity.Role, tenantID *int64) ([]RoleTemplate, error) {
	query := `
		SELECT id, role, tenant_id, resource, action, default_scope, default_conditions, created_at
		FROM role_permission_templates
		WHERE role = $1
		  AND (tenant_id IS NULL OR tenant_id = $2)
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(role), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}
	defer rows.Close()

	var templates []RoleTemplate
	for rows.Next() {
		var t RoleTemplate
		var templateTenantID sql.NullInt64
		var conditionsJSON []byte

		if err := rows.Scan(&t.ID, &t.Role, &templateTenantID, &t.Resource, &t.Action,
			&t.DefaultScope, &conditionsJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role template: %w", err)
		}

		if templateTenantID.Valid {
			id := templateTenantID.Int64
			t.TenantID = &id
		}
		if t.DefaultConditions, err = unmarshalConditions(conditionsJSON); err != nil {
			return nil, err
		}

		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// scanPermission scans a permission from a database row
func scanPermission(scanner interface {
	Scan(dest ...interface{}) error
}) (*Permission, error) {
	var p Permission
	var actorID, tenantID, createdBy sql.NullInt64
	var role, resourceID sql.NullString
	var expiresAt sql.NullTime
	var conditionsJSON []byte

	err := scanner.Scan(
		&p.ID,
		&actorID,
		&role,
		&tenantID,
		&p.Resource,
		&resourceID,
		&p.Action,
		&p.Scope,
		&conditionsJSON,
		&expiresAt,
		&p.IsActive,
		&p.CreatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	if actorID.Valid {
		id := actorID.Int64
		p.ActorID = &id
	}
	if role.Valid {
		r := identity.Role(role.String)
		p.Role = &r
	}
	if tenantID.Valid {
		id := tenantID.Int64
		p.TenantID = &id
	}
	if resourceID.Valid {
		rid := resourceID.String
		p.ResourceID = &rid
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	if createdBy.Valid {
		id := createdBy.Int64
		p.CreatedBy = &id
	}
	if p.Conditions, err = unmarshalConditions(conditionsJSON); err != nil {
		return nil, err
	}

	return &p, nil
}

func marshalConditions(conditions map[string]string) ([]byte, error) {
	if conditions == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conditions: %w", err)
	}
	return data, nil
}

func unmarshalConditions(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var conditions map[string]string
	if err := json.Unmarshal(data, &conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions: %w", err)
	}
	if len(conditions) == 0 {
		return nil, nil
	}
	return conditions, nil
}
