package impersonation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// MinReasonLength is the minimum trimmed length of the free-text
// justification required to start a session.
const MinReasonLength = 10

var (
	// ErrReasonTooShort is a validation failure, not a security denial
	ErrReasonTooShort = fmt.Errorf("impersonation reason must be at least %d characters", MinReasonLength)

	// ErrSelfImpersonation is returned when admin and target are the same actor
	ErrSelfImpersonation = errors.New("cannot impersonate yourself")

	// ErrNotPlatformAdmin is returned when the admin lacks the platform-admin flag
	ErrNotPlatformAdmin = errors.New("only platform admins may impersonate")

	// ErrTargetNotFound is returned when the target is missing or deleted
	ErrTargetNotFound = errors.New("target not found")

	// ErrTargetInactive is returned when the target account is deactivated
	ErrTargetInactive = errors.New("cannot impersonate inactive users")

	// ErrTargetIsAdmin guards against privilege escalation: admins can
	// never be impersonated.
	ErrTargetIsAdmin = errors.New("cannot impersonate other admins")
)

// SessionStore is the persistence surface the service consumes
type SessionStore interface {
	StartSession(ctx context.Context, session *Session, now, cutoff time.Time) error
	EndSession(ctx context.Context, sessionID int64, reason EndReason, now time.Time) error
	GetSession(ctx context.Context, sessionID int64) (*Session, error)
	GetOpenSession(ctx context.Context, adminActorID int64, cutoff time.Time) (*Session, error)
	GetRecentSessions(ctx context.Context, adminActorID int64, limit int) ([]Session, error)
	CloseTimedOut(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// IdentityReader loads actors for eligibility checks
type IdentityReader interface {
	GetActor(ctx context.Context, actorID int64) (*identity.Actor, error)
}

// ServiceConfig wires the service's collaborators
type ServiceConfig struct {
	Store      SessionStore
	Identities IdentityReader
	Logger     *observability.Logger
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
	// Timeout is the active-session window; sessions older than this
	// are logically ended. Defaults to 30 minutes.
	Timeout time.Duration
}

// Service governs the impersonation session lifecycle
type Service struct {
	store      SessionStore
	identities IdentityReader
	logger     *observability.Logger
	clock      clockwork.Clock
	metrics    *observability.Metrics
	timeout    time.Duration
}

// NewService creates an impersonation service
func NewService(cfg ServiceConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:      cfg.Store,
		identities: cfg.Identities,
		logger:     cfg.Logger.WithComponent("impersonation"),
		clock:      clock,
		metrics:    cfg.Metrics,
		timeout:    timeout,
	}
}

// Timeout returns the configured active-session window
func (s *Service) Timeout() time.Duration {
	return s.timeout
}

// Start begins an impersonation session. Preconditions are checked in
// a fixed order and the first failure wins. An existing active session
// for the admin is closed with reason new_session; switching targets is
// allowed, just logged.
func (s *Service) Start(ctx context.Context, adminID, targetID int64, reason, ip, userAgent string) (*Session, error) {
	if len(strings.TrimSpace(reason)) < MinReasonLength {
		s.countStart("reason_too_short")
		return nil, ErrReasonTooShort
	}

	if err := s.CanImpersonate(ctx, adminID, targetID); err != nil {
		s.countStart(startOutcome(err))
		return nil, err
	}

	session := &Session{
		AdminActorID:        adminID,
		ImpersonatedActorID: targetID,
		Reason:              strings.TrimSpace(reason),
		IPAddress:           ip,
		UserAgent:           userAgent,
	}
	now := s.clock.Now().UTC()
	if err := s.store.StartSession(ctx, session, now, now.Add(-s.timeout)); err != nil {
		s.countStart("error")
		return nil, err
	}

	s.countStart("started")
	s.logger.
		WithField("session_id", session.ID).
		WithField("admin_actor_id", adminID).
		WithField("target_actor_id", targetID).
		Info("impersonation session started")

	return session, nil
}

// CanImpersonate checks eligibility without writing anything. A nil
// return means Start would pass the same checks.
func (s *Service) CanImpersonate(ctx context.Context, adminID, targetID int64) error {
	if adminID == targetID {
		return ErrSelfImpersonation
	}

	admin, err := s.identities.GetActor(ctx, adminID)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrNotPlatformAdmin
	}
	if err != nil {
		return err
	}
	if admin.IsDeleted || !admin.IsPlatformAdmin {
		return ErrNotPlatformAdmin
	}

	target, err := s.identities.GetActor(ctx, targetID)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrTargetNotFound
	}
	if err != nil {
		return err
	}
	if target.IsDeleted {
		return ErrTargetNotFound
	}
	if !target.IsActive {
		return ErrTargetInactive
	}
	if target.IsPlatformAdmin {
		return ErrTargetIsAdmin
	}

	return nil
}

// End terminates a session with the given reason. A session that is
// missing or already ended reports a distinct error.
func (s *Service) End(ctx context.Context, sessionID int64, reason EndReason) error {
	if !reason.Valid() {
		return fmt.Errorf("unknown end reason %q", reason)
	}

	if err := s.store.EndSession(ctx, sessionID, reason, s.clock.Now().UTC()); err != nil {
		return err
	}

	s.logger.
		WithField("session_id", sessionID).
		WithField("end_reason", string(reason)).
		Info("impersonation session ended")
	return nil
}

// GetActiveSession returns the admin's active session, or nil when
// there is none. Timeout is evaluated against the wall clock on every
// call; an open-but-timed-out row is inactive immediately, without
// waiting for the sweep.
func (s *Service) GetActiveSession(ctx context.Context, adminID int64) (*Session, error) {
	cutoff := s.clock.Now().UTC().Add(-s.timeout)
	return s.store.GetOpenSession(ctx, adminID, cutoff)
}

// GetSessionByID retrieves one session
func (s *Service) GetSessionByID(ctx context.Context, sessionID int64) (*Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// GetRecentSessions lists the admin's sessions, newest first
func (s *Service) GetRecentSessions(ctx context.Context, adminID int64, limit int) ([]Session, error) {
	return s.store.GetRecentSessions(ctx, adminID, limit)
}

// CleanupTimedOutSessions closes every open session older than the
// timeout with reason timeout and returns the count closed. Idempotent
// and safe to run concurrently with Start and End.
func (s *Service) CleanupTimedOutSessions(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	count, err := s.store.CloseTimedOut(ctx, now.Add(-s.timeout), now)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		if s.metrics != nil {
			s.metrics.ImpersonationTimeoutsSwept.Add(float64(count))
		}
		s.logger.WithField("count", count).Info("closed timed-out impersonation sessions")
	}
	return count, nil
}

func (s *Service) countStart(outcome string) {
	if s.metrics != nil {
		s.metrics.ImpersonationStartsTotal.WithLabelValues(outcome).Inc()
	}
}

func startOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSelfImpersonation):
		return "self"
	case errors.Is(err, ErrNotPlatformAdmin):
		return "not_admin"
	case errors.Is(err, ErrTargetNotFound):
		return "target_not_found"
	case errors.Is(err, ErrTargetInactive):
		return "target_inactive"
	case errors.Is(err, ErrTargetIsAdmin):
		return "target_admin"
	default:
		return "error"
	}
}
