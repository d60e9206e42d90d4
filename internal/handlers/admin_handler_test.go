package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/handlers"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const targetID = "5f1d2c3b-4a59-4e6f-8a7b-9c0d1e2f3a4b"

var adminAccount = &models.Account{
	ID:       "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d",
	Email:    "admin@example.com",
	Roles:    []string{models.RoleAdmin},
	IsActive: true,
}

func targetAccount() *models.Account {
	now := time.Now()
	return &models.Account{
		ID:             targetID,
		Email:          "user@example.com",
		PasswordHash:   "$2a$04$hash",
		Roles:          []string{models.RoleCustomer},
		IsActive:       true,
		EmailVerified:  true,
		SessionVersion: 2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func adminRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	req := handlers.NewTestRequest(t, method, path, body)
	req = handlers.WithSessionContext(req, adminAccount)
	return handlers.WithURLParam(req, "id", targetID)
}

// ============================================================================
// State changes
// ============================================================================

func TestAdminStateChanges(t *testing.T) {
	tests := []struct {
		name   string
		action string
		call   func(h *handlers.AdminHandler) http.HandlerFunc
	}{
		{"ban", "Ban", func(h *handlers.AdminHandler) http.HandlerFunc { return h.Ban }},
		{"unban", "Unban", func(h *handlers.AdminHandler) http.HandlerFunc { return h.Unban }},
		{"deactivate", "Deactivate", func(h *handlers.AdminHandler) http.HandlerFunc { return h.Deactivate }},
		{"activate", "Activate", func(h *handlers.AdminHandler) http.HandlerFunc { return h.Activate }},
		{"verify email", "MarkEmailVerified", func(h *handlers.AdminHandler) http.HandlerFunc { return h.VerifyEmail }},
		{"force logout", "ForceLogout", func(h *handlers.AdminHandler) http.HandlerFunc { return h.ForceLogout }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAction, gotID, gotActor string
			svc := &handlers.MockAccountService{
				ChangeFunc: func(ctx context.Context, action, id, actorID string) (*models.Account, error) {
					gotAction, gotID, gotActor = action, id, actorID
					account := targetAccount()
					account.SessionVersion = 3
					return account, nil
				},
			}
			h := handlers.NewAdminHandler(svc)

			w := httptest.NewRecorder()
			tt.call(h)(w, adminRequest(t, "POST", "/admin/accounts/"+targetID+"/x", nil))

			var resp handlers.AccountResponse
			handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
			assert.Equal(t, tt.action, gotAction)
			assert.Equal(t, targetID, gotID)
			assert.Equal(t, adminAccount.ID, gotActor)
			assert.Equal(t, int64(3), resp.SessionVersion)
			assert.True(t, resp.HasPassword)
		})
	}
}

func TestAdminStateChange_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", models.ErrNotFound), http.StatusNotFound, "not_found"},
		{"internal", models.ErrInternalServer, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockAccountService{
				ChangeFunc: func(ctx context.Context, action, id, actorID string) (*models.Account, error) {
					return nil, tt.err
				},
			}
			h := handlers.NewAdminHandler(svc)

			w := httptest.NewRecorder()
			h.Ban(w, adminRequest(t, "POST", "/admin/accounts/"+targetID+"/ban", nil))

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestAdminStateChange_InvalidID(t *testing.T) {
	called := false
	svc := &handlers.MockAccountService{
		ChangeFunc: func(ctx context.Context, action, id, actorID string) (*models.Account, error) {
			called = true
			return targetAccount(), nil
		},
	}
	h := handlers.NewAdminHandler(svc)

	req := handlers.NewTestRequest(t, "POST", "/admin/accounts/not-a-uuid/ban", nil)
	req = handlers.WithURLParam(handlers.WithSessionContext(req, adminAccount), "id", "not-a-uuid")

	w := httptest.NewRecorder()
	h.Ban(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.False(t, called)
}

// ============================================================================
// Create / Get / SetPassword
// ============================================================================

func TestCreateAccount(t *testing.T) {
	var got services.NewAccount
	svc := &handlers.MockAccountService{
		CreateFunc: func(ctx context.Context, req services.NewAccount) (*models.Account, error) {
			got = req
			account := targetAccount()
			account.Roles = req.Roles
			return account, nil
		},
	}
	h := handlers.NewAdminHandler(svc)

	w := httptest.NewRecorder()
	h.CreateAccount(w, adminRequest(t, "POST", "/admin/accounts", handlers.CreateAccountRequest{
		Email:         "user@example.com",
		Password:      "Secret123!",
		Roles:         []string{models.RoleInstructor},
		EmailVerified: true,
	}))

	var resp handlers.AccountResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, targetID, resp.ID)
	assert.Equal(t, []string{models.RoleInstructor}, resp.Roles)
	assert.Equal(t, "Secret123!", got.Password)
	assert.True(t, got.EmailVerified)
	assert.NotContains(t, w.Body.String(), "$2a$")
}

func TestCreateAccount_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  handlers.CreateAccountRequest
	}{
		{"missing email", handlers.CreateAccountRequest{Password: "Secret123!"}},
		{"invalid email", handlers.CreateAccountRequest{Email: "not-an-email"}},
		{"unknown role", handlers.CreateAccountRequest{Email: "a@b.co", Roles: []string{"root"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewAdminHandler(&handlers.MockAccountService{})

			w := httptest.NewRecorder()
			h.CreateAccount(w, adminRequest(t, "POST", "/admin/accounts", tt.req))

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestCreateAccount_Conflict(t *testing.T) {
	svc := &handlers.MockAccountService{
		CreateFunc: func(ctx context.Context, req services.NewAccount) (*models.Account, error) {
			return nil, models.ErrConflict
		},
	}
	h := handlers.NewAdminHandler(svc)

	w := httptest.NewRecorder()
	h.CreateAccount(w, adminRequest(t, "POST", "/admin/accounts", handlers.CreateAccountRequest{Email: "user@example.com"}))

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestGetAccount(t *testing.T) {
	svc := &handlers.MockAccountService{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			require.Equal(t, targetID, id)
			return targetAccount(), nil
		},
	}
	h := handlers.NewAdminHandler(svc)

	w := httptest.NewRecorder()
	h.GetAccount(w, adminRequest(t, "GET", "/admin/accounts/"+targetID, nil))

	var resp handlers.AccountResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "user@example.com", resp.Email)
}

func TestSetPassword(t *testing.T) {
	var gotPassword string
	svc := &handlers.MockAccountService{
		SetPasswordFunc: func(ctx context.Context, id, password, actorID string) (*models.Account, error) {
			gotPassword = password
			return targetAccount(), nil
		},
	}
	h := handlers.NewAdminHandler(svc)

	w := httptest.NewRecorder()
	h.SetPassword(w, adminRequest(t, "PUT", "/admin/accounts/"+targetID+"/password", handlers.SetPasswordRequest{Password: "N3w-Secret!"}))

	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, "N3w-Secret!", gotPassword)
}

func TestSetPassword_WeakPassword(t *testing.T) {
	svc := &handlers.MockAccountService{
		SetPasswordFunc: func(ctx context.Context, id, password, actorID string) (*models.Account, error) {
			return nil, fmt.Errorf("%w: invalid password", models.ErrBadRequest)
		},
	}
	h := handlers.NewAdminHandler(svc)

	w := httptest.NewRecorder()
	h.SetPassword(w, adminRequest(t, "PUT", "/admin/accounts/"+targetID+"/password", handlers.SetPasswordRequest{Password: "weak"}))

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
