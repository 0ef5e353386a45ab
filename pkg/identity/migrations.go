package identity

import (
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"
)

// Migrations returns the identity schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create actors table",
			SQL: `
				CREATE TABLE IF NOT EXISTS actors (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					is_platform_admin BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					failed_login_attempts INTEGER NOT NULL DEFAULT 0,
					locked_out_until TIMESTAMP WITH TIME ZONE,
					last_login_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_actors_email ON actors(email);
				CREATE INDEX IF NOT EXISTS idx_actors_is_deleted ON actors(is_deleted);
			`,
		},
		{
			Version:     2,
			Description: "Create tenant_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_memberships (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
					tenant_id BIGINT NOT NULL,
					roles TEXT[] NOT NULL DEFAULT '{}',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(actor_id, tenant_id)
				);

				CREATE INDEX IF NOT EXISTS idx_tenant_memberships_actor_id ON tenant_memberships(actor_id);
				CREATE INDEX IF NOT EXISTS idx_tenant_memberships_tenant_id ON tenant_memberships(tenant_id);
			`,
		},
	}
}
