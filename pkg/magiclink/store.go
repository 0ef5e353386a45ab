package magiclink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTokenNotFound is returned when no row matches the token hash.
	ErrTokenNotFound = errors.New("magic link token not found")

	// ErrTokenUsed is returned by Consume when the row was already
	// spent by a concurrent or earlier validation.
	ErrTokenUsed = errors.New("magic link token already used")
)

// Store handles magic link token persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new magic link token store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const tokenColumns = `id, user_id, token_hash, expires_at, used_at,
	       requested_from_ip, requested_user_agent, used_from_ip, used_user_agent, created_at`

// CreateToken persists a new issuance row
func (s *Store) CreateToken(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO magic_link_tokens
			(user_id, token_hash, expires_at, requested_from_ip, requested_user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		nullString(token.RequestedFromIP),
		nullString(token.RequestedUserAgent),
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create magic link token: %w", err)
	}
	return nil
}

// GetByHash loads a token row by its storage hash
func (s *Store) GetByHash(ctx context.Context, tokenHash string) (*Token, error) {
	query := fmt.Sprintf(`SELECT %s FROM magic_link_tokens WHERE token_hash = $1`, tokenColumns)
	token, err := s.scanToken(s.db.QueryRowContext(ctx, query, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get magic link token: %w", err)
	}
	return token, nil
}

// Consume marks the token used and records the user's successful
// login, both in one transaction. The token update is conditional on
// used_at still being NULL, so two concurrent validations of the same
// token cannot both succeed.
func (s *Store) Consume(ctx context.Context, tokenID, userID int64, now time.Time, ip, userAgent string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	consumeQuery := `
		UPDATE magic_link_tokens
		SET used_at = $1, used_from_ip = $2, used_user_agent = $3
		WHERE id = $4 AND used_at IS NULL
	`
	result, err := tx.ExecContext(ctx, consumeQuery, now, nullString(ip), nullString(userAgent), tokenID)
	if err != nil {
		return fmt.Errorf("failed to consume magic link token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTokenUsed
	}

	loginQuery := `
		UPDATE actors
		SET last_login_at = $1, failed_login_attempts = 0, locked_out_until = NULL, updated_at = $1
		WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, loginQuery, now, userID); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountRecentForUser counts issuance rows for the user created at or
// after since. Used for the per-recipient rate limit.
func (s *Store) CountRecentForUser(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM magic_link_tokens WHERE user_id = $1 AND created_at >= $2`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent magic link tokens: %w", err)
	}
	return count, nil
}

// DeleteExpiredBefore removes rows, used or not, whose expiry is older
// than the cutoff. Returns the number removed.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM magic_link_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired magic link tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

func (s *Store) scanToken(row *sql.Row) (*Token, error) {
	var token Token
	var requestedIP, requestedAgent, usedIP, usedAgent sql.NullString
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&requestedIP,
		&requestedAgent,
		&usedIP,
		&usedAgent,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	token.RequestedFromIP = requestedIP.String
	token.RequestedUserAgent = requestedAgent.String
	token.UsedFromIP = usedIP.String
	token.UsedUserAgent = usedAgent.String
	return &token, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
