package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/metrics"
	"github.com/BradenHooton/turnstile/internal/models"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
)

// PasswordVerifier compares a plaintext password with a stored hash
type PasswordVerifier interface {
	Verify(password, hash string) bool
}

// LastLoginRecorder persists the time of a successful login
type LastLoginRecorder interface {
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// LoginResult is returned for a successful login
type LoginResult struct {
	Token   string                `json:"token"`
	Session *models.SessionClaims `json:"session"`
}

// AuthService runs the password-login authorize pipeline. Every rejection is
// reported to the caller as models.ErrAuthenticationFailed; the internal reason
// only reaches logs, the audit trail and metrics.
type AuthService struct {
	validator   *CredentialValidator
	limiter     RateLimiter
	cache       *ExistenceCache
	lastLogin   LastLoginRecorder
	verifier    PasswordVerifier
	guard       *auth.TimingGuard
	issuer      *auth.SessionIssuer
	alerter     Alerter
	metrics     metrics.Recorder
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService. timeout caps the backend work of a
// single attempt and must exceed the timing guard's upper bound.
func NewAuthService(
	validator *CredentialValidator,
	limiter RateLimiter,
	cache *ExistenceCache,
	lastLogin LastLoginRecorder,
	verifier PasswordVerifier,
	guard *auth.TimingGuard,
	issuer *auth.SessionIssuer,
	alerter Alerter,
	recorder metrics.Recorder,
	timeout time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		validator:   validator,
		limiter:     limiter,
		cache:       cache,
		lastLogin:   lastLogin,
		verifier:    verifier,
		guard:       guard,
		issuer:      issuer,
		alerter:     alerter,
		metrics:     recorder,
		timeout:     timeout,
		now:         time.Now,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Authorize decides a login attempt. Malformed attempts and honeypot hits are
// rejected immediately without touching any backend. Every other attempt takes
// a randomized total time drawn from the timing guard's band, whatever its outcome.
func (s *AuthService) Authorize(ctx context.Context, attempt models.LoginAttempt) (*LoginResult, error) {
	started := time.Now()
	attempt.Email = NormalizeEmail(attempt.Email)

	if reason := s.validator.Check(attempt); reason != "" {
		s.record(ctx, attempt, nil, reason, time.Since(started))
		return nil, models.ErrAuthenticationFailed
	}

	window := s.guard.Start()

	workCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, reason := s.authorize(workCtx, attempt)

	var result *LoginResult
	if reason == "" {
		token, claims, err := s.issuer.Issue(account)
		if err != nil {
			s.logger.Error("failed to issue session token", slog.String("user_id", account.ID), slog.Any("error", err))
			reason = models.ReasonBackendPrefix + "token"
		} else {
			result = &LoginResult{Token: token, Session: claims}
		}
	}

	// A cancelled request context means the client is gone; nothing can observe the timing
	_ = window.Wait(ctx)

	s.record(ctx, attempt, account, reason, window.Elapsed())

	if result == nil {
		return nil, models.ErrAuthenticationFailed
	}
	return result, nil
}

// authorize runs the backend checks and returns the account on success, or the
// failure reason. Every path that never reaches the verifier runs the dummy compare.
func (s *AuthService) authorize(ctx context.Context, attempt models.LoginAttempt) (*models.Account, string) {
	allowed, err := s.limiter.Allow(ctx, attempt.Email)
	if err != nil {
		s.guard.DummyCompare(attempt.Password)
		return nil, s.backendFailure(ctx, "redis", err)
	}
	if !allowed {
		s.guard.DummyCompare(attempt.Password)
		s.metrics.RecordRateLimited()
		return nil, models.ReasonRateLimited
	}

	cached, err := s.cache.Lookup(ctx, attempt.Email)
	if err != nil {
		s.logger.Warn("existence cache unavailable, reading account store",
			slog.String("email", pkglogger.SanitizedEmail(attempt.Email)),
			slog.String("error", err.Error()))
	}
	if cached == CacheIneligible {
		s.guard.DummyCompare(attempt.Password)
		return nil, models.ReasonIneligiblePrefix + "cached"
	}

	// A cached "eligible" is never trusted on its own: the store is re-read so
	// bans and other state changes apply even if the cache refresh was lost
	account, err := s.cache.Resolve(ctx, attempt.Email)
	if err != nil {
		s.guard.DummyCompare(attempt.Password)
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ReasonIneligiblePrefix + models.IneligibleNotFound
		}
		return nil, s.backendFailure(ctx, "postgres", err)
	}

	if ok, predicate := account.Eligibility(); !ok {
		s.guard.DummyCompare(attempt.Password)
		return account, models.ReasonIneligiblePrefix + predicate
	}

	if !s.verifier.Verify(attempt.Password, account.PasswordHash) {
		return account, models.ReasonInvalidCredentials
	}

	// Fail closed: the session is only issued once the login is durably recorded
	if err := s.lastLogin.UpdateLastLogin(ctx, account.ID, s.now()); err != nil {
		return account, s.backendFailure(ctx, "postgres", err)
	}

	if err := s.cache.Refresh(ctx, account); err != nil {
		s.logger.Warn("existence cache refresh after login failed",
			slog.String("user_id", account.ID),
			slog.String("error", err.Error()))
	}

	return account, ""
}

// backendFailure classifies err as a timeout or a backend outage and raises an alert for outages
func (s *AuthService) backendFailure(ctx context.Context, backend string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ReasonTimeout
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return models.ReasonCanceled
	}

	s.metrics.RecordBackendError(backend)
	s.alerter.Alert(ctx, backend, err)
	return models.ReasonBackendPrefix + backend
}

func (s *AuthService) record(ctx context.Context, attempt models.LoginAttempt, account *models.Account, reason string, elapsed time.Duration) {
	outcome := reason
	if outcome == "" {
		outcome = "success"
	}
	s.metrics.RecordAuthorize(outcome, elapsed)

	event := pkglogger.AuditEvent{
		EventType:     pkglogger.EventLoginSuccess,
		Email:         attempt.Email,
		IPAddress:     attempt.IPAddress,
		UserAgent:     attempt.UserAgent,
		Success:       reason == "",
		FailureReason: reason,
		Duration:      elapsed,
	}
	if account != nil {
		event.UserID = account.ID
	}
	if reason != "" {
		event.EventType = pkglogger.EventLoginFailed
	}
	s.auditLogger.LogAuthAttempt(ctx, event)

	if reason == "" {
		s.logger.Info("user logged in", slog.String("user_id", event.UserID))
	} else {
		s.logger.Info("login failed", slog.String("reason", reason))
	}
}
