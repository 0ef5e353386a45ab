package impersonation

import (
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"
)

// Migrations returns the impersonation schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create impersonation_sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS impersonation_sessions (
					id BIGSERIAL PRIMARY KEY,
					admin_actor_id BIGINT NOT NULL REFERENCES actors(id),
					impersonated_actor_id BIGINT NOT NULL REFERENCES actors(id),
					started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					ended_at TIMESTAMP WITH TIME ZONE,
					reason TEXT NOT NULL,
					ip_address VARCHAR(45),
					user_agent TEXT,
					end_reason VARCHAR(32)
				);

				CREATE INDEX IF NOT EXISTS idx_impersonation_sessions_admin
					ON impersonation_sessions(admin_actor_id, started_at DESC);
				CREATE INDEX IF NOT EXISTS idx_impersonation_sessions_open
					ON impersonation_sessions(started_at) WHERE ended_at IS NULL;
			`,
		},
	}
}
