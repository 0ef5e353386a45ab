package audit

import (
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"
)

// Migrations returns the audit schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create authorization_audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS authorization_audit_log (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT NOT NULL,
					tenant_id BIGINT,
					resource VARCHAR(255) NOT NULL,
					resource_id VARCHAR(255),
					action VARCHAR(50) NOT NULL,
					allowed BOOLEAN NOT NULL,
					denial_reason TEXT,
					request_id VARCHAR(100),
					checked_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_authz_audit_actor_id ON authorization_audit_log(actor_id);
				CREATE INDEX IF NOT EXISTS idx_authz_audit_tenant_id ON authorization_audit_log(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_authz_audit_checked_at ON authorization_audit_log(checked_at DESC);
				CREATE INDEX IF NOT EXISTS idx_authz_audit_resource ON authorization_audit_log(resource, action);
			`,
		},
	}
}
