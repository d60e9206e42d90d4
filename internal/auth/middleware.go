package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/turnstile/internal/models"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
	// AccountContextKey is the key for storing the current account record in context
	AccountContextKey contextKey = "account"
)

// AccountReader loads the authoritative account record for a session
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// SessionValidator checks presented session tokens against the current account state.
// A token is valid only while the account's session version equals the one captured
// at issuance.
type SessionValidator struct {
	issuer   *SessionIssuer
	accounts AccountReader
}

// NewSessionValidator creates a new SessionValidator
func NewSessionValidator(issuer *SessionIssuer, accounts AccountReader) *SessionValidator {
	return &SessionValidator{issuer: issuer, accounts: accounts}
}

// Validate parses token and loads its account. Errors:
//   - models.ErrSessionInvalid: bad signature, expired, or account gone
//   - models.ErrSessionStale: session version was bumped after issuance
//   - models.ErrAccountBanned, models.ErrAccountInactive: account state forbids sessions
//   - models.ErrBackendUnavailable: the account store could not be read
func (sv *SessionValidator) Validate(ctx context.Context, token string) (*models.SessionClaims, *models.Account, error) {
	claims, err := sv.issuer.Parse(token)
	if err != nil {
		return nil, nil, err
	}

	account, err := sv.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}

	if account.SessionVersion != claims.SessionVersion {
		return nil, nil, models.ErrSessionStale
	}
	if account.IsBanned {
		return nil, nil, models.ErrAccountBanned
	}
	if !account.IsActive {
		return nil, nil, models.ErrAccountInactive
	}

	return claims, account, nil
}

// RequireSession validates the bearer token and injects claims and account into context
func RequireSession(validator *SessionValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, account, err := validator.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrBackendUnavailable) {
					// Fail closed: we cannot tell whether the session is still valid
					logger.Error("session validation unavailable", slog.String("error", err.Error()))
					pkghttp.WriteServiceUnavailable(w, "unable to verify session")
					return
				}
				logger.Debug("session rejected", slog.String("reason", err.Error()))
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			ctx = context.WithValue(ctx, AccountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access control using the account loaded by
// RequireSession, so a role revoked after issuance takes effect immediately
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccountFromContext(r)
			if account == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if !account.HasRole(role) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts session claims from request context
func GetSessionFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetAccountFromContext extracts the account loaded for this session
func GetAccountFromContext(r *http.Request) *models.Account {
	account, ok := r.Context().Value(AccountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
