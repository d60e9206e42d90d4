package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	pkgauth "github.com/BradenHooton/turnstile/pkg/auth"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
)

// AccountRepository defines the interface for account data access.
// SetBanned(true), SetActive(false) and SetPasswordHash also bump session_version
// in the same statement; every writer returns the record as stored.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	IncrementSessionVersion(ctx context.Context, id string) (*models.Account, error)
	SetBanned(ctx context.Context, id string, banned bool) (*models.Account, error)
	SetActive(ctx context.Context, id string, active bool) (*models.Account, error)
	SetEmailVerified(ctx context.Context, id string, verified bool) (*models.Account, error)
	SetPasswordHash(ctx context.Context, id, hash string) (*models.Account, error)
}

// NewAccount holds the fields needed to create an account
type NewAccount struct {
	Email         string
	Password      string // optional; accounts without one cannot log in with a password
	DisplayName   string
	Gender        string
	Preference    string
	Roles         []string
	EmailVerified bool
}

// AccountService applies the account state changes the login pipeline depends on.
// Every change is written to the store first and then pushed into the existence
// cache from the record the store returned.
type AccountService struct {
	repo        AccountRepository
	cache       *ExistenceCache
	hasher      *pkgauth.Hasher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAccountService creates a new AccountService
func NewAccountService(repo AccountRepository, cache *ExistenceCache, hasher *pkgauth.Hasher, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AccountService {
	return &AccountService{
		repo:        repo,
		cache:       cache,
		hasher:      hasher,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create validates and stores a new account
func (s *AccountService) Create(ctx context.Context, req NewAccount) (*models.Account, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}

	account := &models.Account{
		Email:         email,
		DisplayName:   req.DisplayName,
		Gender:        req.Gender,
		Preference:    req.Preference,
		Roles:         req.Roles,
		IsActive:      true,
		EmailVerified: req.EmailVerified,
	}
	if len(account.Roles) == 0 {
		account.Roles = []string{models.RoleCustomer}
	}

	if req.Password != "" {
		if err := pkgauth.ValidatePassword(req.Password); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
		}
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			s.logger.Error("failed to hash password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		account.PasswordHash = hash
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("account already exists")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.refreshCache(ctx, created)
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventAccountCreated, created.ID, "", nil)
	s.logger.Info("account created", slog.String("user_id", created.ID))

	return created, nil
}

// GetByID returns an account
func (s *AccountService) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// Ban blocks the account and invalidates its sessions
func (s *AccountService) Ban(ctx context.Context, id, actorID string) (*models.Account, error) {
	return s.apply(ctx, id, actorID, pkglogger.EventAccountBanned, func(ctx context.Context) (*models.Account, error) {
		return s.repo.SetBanned(ctx, id, true)
	})
}

// Unban lifts a ban. Sessions invalidated by the ban stay invalid.
func (s *AccountService) Unban(ctx context.Context, id, actorID string) (*models.Account, error) {
	return s.apply(ctx, id, actorID, pkglogger.EventAccountUnbanned, func(ctx context.Context) (*models.Account, error) {
		return s.repo.SetBanned(ctx, id, false)
	})
}

// Deactivate disables the account and invalidates its sessions
func (s *AccountService) Deactivate(ctx context.Context, id, actorID string) (*models.Account, error) {
	return s.apply(ctx, id, actorID, pkglogger.EventAccountDeactivated, func(ctx context.Context) (*models.Account, error) {
		return s.repo.SetActive(ctx, id, false)
	})
}

// Activate re-enables a deactivated account
func (s *AccountService) Activate(ctx context.Context, id, actorID string) (*models.Account, error) {
	return s.apply(ctx, id, actorID, pkglogger.EventAccountActivated, func(ctx context.Context) (*models.Account, error) {
		return s.repo.SetActive(ctx, id, true)
	})
}

// MarkEmailVerified records that the account's email address was confirmed
func (s *AccountService) MarkEmailVerified(ctx context.Context, id, actorID string) (*models.Account, error) {
	return s.apply(ctx, id, actorID, pkglogger.EventEmailVerified, func(ctx context.Context) (*models.Account, error) {
		return s.repo.SetEmailVerified(ctx, id, true)
	})
}

// SetPassword replaces the password hash and invalidates existing sessions
func (s *AccountService) SetPassword(ctx context.Context, id, password, actorID string) (*models.Account, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.apply(ctx, id, actorID, pkglogger.EventPasswordSet, func(ctx context.Context) (*models.Account, error) {
		return s.repo.SetPasswordHash(ctx, id, hash)
	})
}

// ForceLogout invalidates every session issued so far
func (s *AccountService) ForceLogout(ctx context.Context, id, actorID string) (*models.Account, error) {
	return s.apply(ctx, id, actorID, pkglogger.EventSessionsRevoked, func(ctx context.Context) (*models.Account, error) {
		return s.repo.IncrementSessionVersion(ctx, id)
	})
}

// apply runs a store write, refreshes the cache from the returned record and audits the change
func (s *AccountService) apply(ctx context.Context, id, actorID, eventType string, write func(ctx context.Context) (*models.Account, error)) (*models.Account, error) {
	account, err := write(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("account not found", slog.String("user_id", id), slog.String("action", eventType))
			return nil, models.ErrNotFound
		}
		s.logger.Error("account update failed",
			slog.String("user_id", id),
			slog.String("action", eventType),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.refreshCache(ctx, account)
	s.auditLogger.LogAccountAction(ctx, eventType, account.ID, actorID, map[string]string{
		"session_version": strconv.FormatInt(account.SessionVersion, 10),
	})
	s.logger.Info("account updated", slog.String("user_id", account.ID), slog.String("action", eventType))

	return account, nil
}

// refreshCache never fails the flow: the store write already happened, and the
// pipeline re-reads the store whenever the cache does not say ineligible
func (s *AccountService) refreshCache(ctx context.Context, account *models.Account) {
	if err := s.cache.Refresh(ctx, account); err != nil {
		s.logger.Error("existence cache refresh failed",
			slog.String("user_id", account.ID),
			slog.String("error", err.Error()))
	}
}
