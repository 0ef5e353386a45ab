package impersonation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound is returned when the referenced session does
	// not exist.
	ErrSessionNotFound = errors.New("impersonation session not found")

	// ErrAlreadyEnded is returned when ending a session that already
	// has a terminal state.
	ErrAlreadyEnded = errors.New("impersonation session already ended")
)

// Store handles impersonation session persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new impersonation session store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `id, admin_actor_id, impersonated_actor_id, started_at, ended_at,
	       reason, ip_address, user_agent, end_reason`

// StartSession closes the admin's active session with reason
// new_session and inserts the new row, both in one transaction, so no
// reader can observe two active sessions for one admin. An open row
// already past the timeout window (started at or before cutoff) is
// left alone; the sweep stamps those with reason timeout.
func (s *Store) StartSession(ctx context.Context, session *Session, now, cutoff time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	closeQuery := `
		UPDATE impersonation_sessions
		SET ended_at = $1, end_reason = $2
		WHERE admin_actor_id = $3 AND ended_at IS NULL AND started_at > $4
	`
	if _, err := tx.ExecContext(ctx, closeQuery, now, string(EndReasonNewSession), session.AdminActorID, cutoff); err != nil {
		return fmt.Errorf("failed to close existing session: %w", err)
	}

	insertQuery := `
		INSERT INTO impersonation_sessions
			(admin_actor_id, impersonated_actor_id, started_at, reason, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, insertQuery,
		session.AdminActorID,
		session.ImpersonatedActorID,
		now,
		session.Reason,
		session.IPAddress,
		session.UserAgent,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	session.StartedAt = now

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session start: %w", err)
	}
	return nil
}

// EndSession sets the terminal state on an open session. The update is
// conditional on ended_at being unset, so racing closers are harmless:
// exactly one wins and the other gets ErrAlreadyEnded.
func (s *Store) EndSession(ctx context.Context, sessionID int64, reason EndReason, now time.Time) error {
	query := `
		UPDATE impersonation_sessions
		SET ended_at = $1, end_reason = $2
		WHERE id = $3 AND ended_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, now, string(reason), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Distinguish missing from already-ended for the caller.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM impersonation_sessions WHERE id = $1)`, sessionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}
	return ErrAlreadyEnded
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, sessionID int64) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM impersonation_sessions
		WHERE id = $1
	`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetOpenSession returns the admin's open session started after the
// cutoff, or nil when there is none. Open rows older than the cutoff
// are left for the timeout sweep.
func (s *Store) GetOpenSession(ctx context.Context, adminActorID int64, cutoff time.Time) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM impersonation_sessions
		WHERE admin_actor_id = $1
		  AND ended_at IS NULL
		  AND started_at > $2
		ORDER BY started_at DESC
		LIMIT 1
	`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, adminActorID, cutoff))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return session, nil
}

// GetRecentSessions returns the admin's sessions, newest first
func (s *Store) GetRecentSessions(ctx context.Context, adminActorID int64, limit int) ([]Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM impersonation_sessions
		WHERE admin_actor_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, adminActorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}

	return sessions, rows.Err()
}

// CloseTimedOut assigns the timeout end reason to every open session
// started at or before the cutoff and returns how many were closed.
// The conditional update makes the sweep idempotent and safe to race
// with explicit session ends.
func (s *Store) CloseTimedOut(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query := `
		UPDATE impersonation_sessions
		SET ended_at = $1, end_reason = $2
		WHERE ended_at IS NULL AND started_at <= $3
	`
	result, err := s.db.ExecContext(ctx, query, now, string(EndReasonTimeout), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to close timed-out sessions: %w", err)
	}
	return result.RowsAffected()
}

// CountOpenSessions returns the number of open session rows; used for
// the active-sessions gauge.
func (s *Store) CountOpenSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM impersonation_sessions WHERE ended_at IS NULL`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open sessions: %w", err)
	}
	return count, nil
}

func scanSession(scanner interface {
	Scan(dest ...interface{}) error
}) (*Session, error) {
	var session Session
	var endedAt sql.NullTime
	var ipAddress, userAgent, endReason sql.NullString

	err := scanner.Scan(
		&session.ID,
		&session.AdminActorID,
		&session.ImpersonatedActorID,
		&session.StartedAt,
		&endedAt,
		&session.Reason,
		&ipAddress,
		&userAgent,
		&endReason,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	if ipAddress.Valid {
		session.IPAddress = ipAddress.String
	}
	if userAgent.Valid {
		session.UserAgent = userAgent.String
	}
	if endReason.Valid {
		r := EndReason(endReason.String)
		session.EndReason = &r
	}

	return &session, nil
}
