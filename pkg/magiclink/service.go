package magiclink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// ValidationStatus is the outcome of a validation attempt. Unlike
// issuance, validation reports distinct failure causes: the caller has
// already presented the token, so enumeration risk is low.
type ValidationStatus string

const (
	StatusOK            ValidationStatus = "ok"
	StatusInvalidToken  ValidationStatus = "invalid_token"
	StatusAlreadyUsed   ValidationStatus = "already_used"
	StatusExpiredToken  ValidationStatus = "expired_token"
	StatusUserNotFound  ValidationStatus = "user_not_found"
	StatusUserInactive  ValidationStatus = "user_inactive"
	StatusUserLockedOut ValidationStatus = "user_locked_out"
)

// RequestResult is the outcome of an issuance request. Sent and
// RawToken are for the caller's internal hand-off only; every external
// response is the same generic shape whether or not a token was
// issued.
type RequestResult struct {
	Sent      bool
	RawToken  string
	Email     string
	ExpiresAt time.Time
}

// ValidationResult carries the validation status and, on success, the
// authenticated actor.
type ValidationResult struct {
	Status ValidationStatus
	Actor  *identity.Actor
}

// TokenStore is the persistence surface the service needs
type TokenStore interface {
	CreateToken(ctx context.Context, token *Token) error
	GetByHash(ctx context.Context, tokenHash string) (*Token, error)
	Consume(ctx context.Context, tokenID, userID int64, now time.Time, ip, userAgent string) error
	CountRecentForUser(ctx context.Context, userID int64, since time.Time) (int, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdentityReader loads actors for issuance and validation
type IdentityReader interface {
	GetActor(ctx context.Context, actorID int64) (*identity.Actor, error)
	GetActorByEmail(ctx context.Context, email string) (*identity.Actor, error)
}

// ServiceConfig wires the service's collaborators
type ServiceConfig struct {
	Store      TokenStore
	Identities IdentityReader
	Notifier   Notifier
	Logger     *observability.Logger
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
	// Expiration is the token validity window. Defaults to 15 minutes.
	Expiration time.Duration
	// MaxPerHour caps issuance per recipient in a trailing hour.
	// Defaults to 5.
	MaxPerHour int
	// BaseURL is the login page the raw token is appended to when
	// building the link handed to the notifier.
	BaseURL string
}

// Service issues and validates magic link tokens
type Service struct {
	store      TokenStore
	identities IdentityReader
	notifier   Notifier
	logger     *observability.Logger
	clock      clockwork.Clock
	metrics    *observability.Metrics
	expiration time.Duration
	maxPerHour int
	baseURL    string
}

// NewService creates a magic link service
func NewService(cfg ServiceConfig) *Service {
	expiration := cfg.Expiration
	if expiration <= 0 {
		expiration = 15 * time.Minute
	}
	maxPerHour := cfg.MaxPerHour
	if maxPerHour <= 0 {
		maxPerHour = 5
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = &LogNotifier{Logger: cfg.Logger}
	}
	return &Service{
		store:      cfg.Store,
		identities: cfg.Identities,
		notifier:   notifier,
		logger:     cfg.Logger.WithComponent("magiclink"),
		clock:      clock,
		metrics:    cfg.Metrics,
		expiration: expiration,
		maxPerHour: maxPerHour,
		baseURL:    cfg.BaseURL,
	}
}

// NormalizeEmail applies the canonical form used for all lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Request issues a magic link token for the email. A rate-limited,
// unknown, deleted, or inactive recipient gets the same generic result
// as a successful one; only Sent distinguishes them internally, and no
// caller may leak it. Infrastructure failures propagate as errors.
func (s *Service) Request(ctx context.Context, email, ip, userAgent string) (*RequestResult, error) {
	email = NormalizeEmail(email)
	generic := &RequestResult{Sent: false, Email: email}

	actor, err := s.identities.GetActorByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		s.countRequest("user_not_found")
		return generic, nil
	}
	if err != nil {
		s.countRequest("error")
		return nil, err
	}
	if !actor.IsActive {
		s.countRequest("user_inactive")
		return generic, nil
	}

	limited, err := s.isRateLimited(ctx, actor.ID)
	if err != nil {
		s.countRequest("error")
		return nil, err
	}
	if limited {
		s.countRequest("rate_limited")
		s.logger.WithField("actor_id", actor.ID).Warn("magic link request rate limited")
		return generic, nil
	}

	rawToken, err := GenerateToken()
	if err != nil {
		s.countRequest("error")
		return nil, err
	}

	now := s.clock.Now().UTC()
	token := &Token{
		UserID:             actor.ID,
		TokenHash:          HashToken(rawToken),
		ExpiresAt:          now.Add(s.expiration),
		RequestedFromIP:    ip,
		RequestedUserAgent: userAgent,
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		s.countRequest("error")
		return nil, err
	}

	// Notify only after the row is durable. A delivery failure is
	// logged, not returned; the token stays valid.
	if err := s.notifier.SendMagicLinkMessage(ctx, Message{
		ToEmail:       email,
		LinkURL:       s.buildLink(rawToken),
		ExpiresAt:     token.ExpiresAt,
		RequestFromIP: ip,
	}); err != nil {
		s.logger.WithError(err).WithField("actor_id", actor.ID).Error("magic link delivery failed")
	}

	s.countRequest("sent")
	s.logger.WithField("actor_id", actor.ID).Info("magic link issued")

	return &RequestResult{
		Sent:      true,
		RawToken:  rawToken,
		Email:     email,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// IsRateLimited reports whether the email's recipient is at the
// issuance cap for the trailing hour. An unknown email is never
// rate-limited.
func (s *Service) IsRateLimited(ctx context.Context, email string) (bool, error) {
	actor, err := s.identities.GetActorByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.isRateLimited(ctx, actor.ID)
}

func (s *Service) isRateLimited(ctx context.Context, userID int64) (bool, error) {
	since := s.clock.Now().UTC().Add(-time.Hour)
	count, err := s.store.CountRecentForUser(ctx, userID, since)
	if err != nil {
		return false, err
	}
	return count >= s.maxPerHour, nil
}

// Validate checks a raw token and, when everything holds, spends it
// and records the login. Consumption is conditional at the store
// layer, so concurrent attempts with the same token succeed at most
// once.
func (s *Service) Validate(ctx context.Context, rawToken, ip, userAgent string) (*ValidationResult, error) {
	token, err := s.store.GetByHash(ctx, HashToken(rawToken))
	if errors.Is(err, ErrTokenNotFound) {
		return s.validationResult(StatusInvalidToken, nil), nil
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if token.UsedAt != nil {
		return s.validationResult(StatusAlreadyUsed, nil), nil
	}
	if token.Expired(now) {
		return s.validationResult(StatusExpiredToken, nil), nil
	}

	actor, err := s.identities.GetActor(ctx, token.UserID)
	if errors.Is(err, identity.ErrNotFound) {
		return s.validationResult(StatusUserNotFound, nil), nil
	}
	if err != nil {
		return nil, err
	}
	if actor.IsDeleted {
		return s.validationResult(StatusUserNotFound, nil), nil
	}
	if !actor.IsActive {
		return s.validationResult(StatusUserInactive, nil), nil
	}
	if actor.LockedOut(now) {
		return s.validationResult(StatusUserLockedOut, nil), nil
	}

	err = s.store.Consume(ctx, token.ID, actor.ID, now, ip, userAgent)
	if errors.Is(err, ErrTokenUsed) {
		// Lost the race to a concurrent validation.
		return s.validationResult(StatusAlreadyUsed, nil), nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithField("actor_id", actor.ID).Info("magic link login")
	return s.validationResult(StatusOK, actor), nil
}

// CleanupExpiredTokens removes tokens more than 24 hours past expiry.
// Storage hygiene only; expiry itself is enforced at validation time.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().UTC().Add(-24 * time.Hour)
	count, err := s.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		if s.metrics != nil {
			s.metrics.MagicLinkTokensSwept.Add(float64(count))
		}
		s.logger.WithField("count", count).Info("removed expired magic link tokens")
	}
	return count, nil
}

func (s *Service) buildLink(rawToken string) string {
	if s.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, url.QueryEscape(rawToken))
}

func (s *Service) validationResult(status ValidationStatus, actor *identity.Actor) *ValidationResult {
	if s.metrics != nil {
		s.metrics.MagicLinkValidationsTotal.WithLabelValues(string(status)).Inc()
	}
	return &ValidationResult{Status: status, Actor: actor}
}

func (s *Service) countRequest(outcome string) {
	if s.metrics != nil {
		s.metrics.MagicLinkRequestsTotal.WithLabelValues(outcome).Inc()
	}
}
