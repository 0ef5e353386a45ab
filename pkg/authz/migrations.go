package authz

import (
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"
)

// Migrations returns the permission schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT REFERENCES actors(id) ON DELETE CASCADE,
					role VARCHAR(64),
					tenant_id BIGINT,
					resource VARCHAR(64) NOT NULL,
					resource_id VARCHAR(255),
					action VARCHAR(32) NOT NULL,
					scope VARCHAR(16) NOT NULL,
					conditions JSONB NOT NULL DEFAULT '{}',
					expires_at TIMESTAMP WITH TIME ZONE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					created_by BIGINT REFERENCES actors(id),
					CHECK ((actor_id IS NULL) <> (role IS NULL))
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_actor_lookup
					ON permissions(actor_id, resource, action) WHERE is_active = TRUE;
				CREATE INDEX IF NOT EXISTS idx_permissions_role_lookup
					ON permissions(role, resource, action) WHERE is_active = TRUE;
				CREATE INDEX IF NOT EXISTS idx_permissions_tenant_id
					ON permissions(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create role_permission_templates table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permission_templates (
					id BIGSERIAL PRIMARY KEY,
					role VARCHAR(64) NOT NULL,
					tenant_id BIGINT,
					resource VARCHAR(64) NOT NULL,
					action VARCHAR(32) NOT NULL,
					default_scope VARCHAR(16) NOT NULL,
					default_conditions JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_role_permission_templates_role
					ON role_permission_templates(role, tenant_id);
			`,
		},
	}
}
