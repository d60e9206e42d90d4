package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccounts struct {
	account *models.Account
	err     error
}

func (s *stubAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account == nil || s.account.ID != id {
		return nil, models.ErrNotFound
	}
	copied := *s.account
	return &copied, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func issue(t *testing.T, issuer *auth.SessionIssuer, account *models.Account) string {
	t.Helper()
	token, _, err := issuer.Issue(account)
	require.NoError(t, err)
	return token
}

func TestSessionValidator_Validate(t *testing.T) {
	issuer := auth.NewSessionIssuer(testSecret, time.Hour, "turnstile")

	t.Run("valid while versions match", func(t *testing.T) {
		account := testAccount()
		validator := auth.NewSessionValidator(issuer, &stubAccounts{account: account})

		claims, current, err := validator.Validate(context.Background(), issue(t, issuer, account))
		require.NoError(t, err)
		assert.Equal(t, account.ID, claims.UserID)
		assert.Equal(t, account.SessionVersion, current.SessionVersion)
	})

	t.Run("stale after version bump", func(t *testing.T) {
		account := testAccount()
		store := &stubAccounts{account: account}
		validator := auth.NewSessionValidator(issuer, store)
		token := issue(t, issuer, account)

		store.account.SessionVersion++

		_, _, err := validator.Validate(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrSessionStale)
	})

	t.Run("banned account", func(t *testing.T) {
		account := testAccount()
		store := &stubAccounts{account: account}
		validator := auth.NewSessionValidator(issuer, store)
		token := issue(t, issuer, account)

		store.account.IsBanned = true

		_, _, err := validator.Validate(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrAccountBanned)
	})

	t.Run("inactive account", func(t *testing.T) {
		account := testAccount()
		store := &stubAccounts{account: account}
		validator := auth.NewSessionValidator(issuer, store)
		token := issue(t, issuer, account)

		store.account.IsActive = false

		_, _, err := validator.Validate(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrAccountInactive)
	})

	t.Run("account deleted", func(t *testing.T) {
		token := issue(t, issuer, testAccount())
		validator := auth.NewSessionValidator(issuer, &stubAccounts{})

		_, _, err := validator.Validate(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrSessionInvalid)
	})

	t.Run("store unavailable", func(t *testing.T) {
		token := issue(t, issuer, testAccount())
		validator := auth.NewSessionValidator(issuer, &stubAccounts{err: errors.New("connection refused")})

		_, _, err := validator.Validate(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrBackendUnavailable)
	})
}

func TestRequireSession(t *testing.T) {
	issuer := auth.NewSessionIssuer(testSecret, time.Hour, "turnstile")
	account := testAccount()
	store := &stubAccounts{account: account}
	validator := auth.NewSessionValidator(issuer, store)

	var seen *models.SessionClaims
	handler := auth.RequireSession(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.GetSessionFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + issue(t, issuer, account), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, account.ID, seen.UserID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestRequireSession_BackendDown(t *testing.T) {
	issuer := auth.NewSessionIssuer(testSecret, time.Hour, "turnstile")
	token := issue(t, issuer, testAccount())
	validator := auth.NewSessionValidator(issuer, &stubAccounts{err: errors.New("timeout")})

	handler := auth.RequireSession(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run when the session cannot be verified")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireRole(t *testing.T) {
	issuer := auth.NewSessionIssuer(testSecret, time.Hour, "turnstile")

	admin := testAccount()
	admin.Roles = []string{models.RoleCustomer, models.RoleAdmin}
	customer := testAccount()

	tests := []struct {
		name       string
		account    *models.Account
		wantStatus int
	}{
		{"admin allowed", admin, http.StatusOK},
		{"customer forbidden", customer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := auth.NewSessionValidator(issuer, &stubAccounts{account: tt.account})
			chain := auth.RequireSession(validator, discardLogger())(
				auth.RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})),
			)

			req := httptest.NewRequest(http.MethodPost, "/admin/accounts/x/ban", nil)
			req.Header.Set("Authorization", "Bearer "+issue(t, issuer, tt.account))
			rec := httptest.NewRecorder()
			chain.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireRole_WithoutSession(t *testing.T) {
	handler := auth.RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
