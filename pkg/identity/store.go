package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when the requested actor does not exist
var ErrNotFound = errors.New("actor not found")

// Store handles actor and membership persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new identity store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const actorColumns = `id, email, display_name, is_platform_admin, is_active, is_deleted,
	       failed_login_attempts, locked_out_until, last_login_at, created_at, updated_at`

// GetActor retrieves an actor by ID, including soft-deleted rows; callers
// decide how deletion affects their outcome.
func (s *Store) GetActor(ctx context.Context, actorID int64) (*Actor, error) {
	query := `
		SELECT ` + actorColumns + `
		FROM actors
		WHERE id = $1
	`
	return s.scanActor(s.db.QueryRowContext(ctx, query, actorID))
}

// GetActorByEmail retrieves a non-deleted actor by normalized email
func (s *Store) GetActorByEmail(ctx context.Context, email string) (*Actor, error) {
	query := `
		SELECT ` + actorColumns + `
		FROM actors
		WHERE email = $1 AND is_deleted = FALSE
	`
	return s.scanActor(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) scanActor(row *sql.Row) (*Actor, error) {
	var actor Actor
	var lockedOutUntil, lastLoginAt sql.NullTime

	err := row.Scan(
		&actor.ID,
		&actor.Email,
		&actor.DisplayName,
		&actor.IsPlatformAdmin,
		&actor.IsActive,
		&actor.IsDeleted,
		&actor.FailedLoginAttempts,
		&lockedOutUntil,
		&lastLoginAt,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}

	if lockedOutUntil.Valid {
		t := lockedOutUntil.Time
		actor.LockedOutUntil = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		actor.LastLoginAt = &t
	}

	return &actor, nil
}

// GetMemberships retrieves all memberships for an actor, active or not
func (s *Store) GetMemberships(ctx context.Context, actorID int64) ([]TenantMembership, error) {
	query := `
		SELECT id, actor_id, tenant_id, roles, is_active, created_at
		FROM tenant_memberships
		WHERE actor_id = $1
		ORDER BY tenant_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships: %w", err)
	}
	defer rows.Close()

	var memberships []TenantMembership
	for rows.Next() {
		var m TenantMembership
		var roles pq.StringArray

		if err := rows.Scan(&m.ID, &m.ActorID, &m.TenantID, &roles, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}

		m.Roles = make([]Role, 0, len(roles))
		for _, r := range roles {
			m.Roles = append(m.Roles, Role(r))
		}

		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

// RecordSuccessfulLogin updates login bookkeeping: sets last_login_at,
// resets the failed-attempt counter, and clears any lockout.
func (s *Store) RecordSuccessfulLogin(ctx context.Context, actorID int64, at time.Time) error {
	query := `
		UPDATE actors
		SET last_login_at = $1, failed_login_attempts = 0, locked_out_until = NULL, updated_at = $1
		WHERE id = $2
	`
	result, err := s.db.ExecContext(ctx, query, at, actorID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
