package magiclink

import "github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"

// Migrations returns the magic link schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create magic_link_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS magic_link_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES actors(id),
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
					used_at TIMESTAMP WITH TIME ZONE,
					requested_from_ip VARCHAR(45),
					requested_user_agent TEXT,
					used_from_ip VARCHAR(45),
					used_user_agent TEXT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_magic_link_tokens_user_created
					ON magic_link_tokens(user_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_magic_link_tokens_expires
					ON magic_link_tokens(expires_at);
			`,
		},
	}
}
