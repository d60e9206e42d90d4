package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext puts claims and account into the request context the way RequireSession does
func WithSessionContext(req *http.Request, account *models.Account) *http.Request {
	claims := &models.SessionClaims{
		UserID:         account.ID,
		Email:          account.Email,
		Roles:          account.Roles,
		SessionVersion: account.SessionVersion,
	}
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, claims)
	ctx = context.WithValue(ctx, auth.AccountContextKey, account)
	return req.WithContext(ctx)
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	AuthorizeFunc func(ctx context.Context, attempt models.LoginAttempt) (*services.LoginResult, error)
}

func (m *MockAuthService) Authorize(ctx context.Context, attempt models.LoginAttempt) (*services.LoginResult, error) {
	if m.AuthorizeFunc == nil {
		return nil, models.ErrAuthenticationFailed
	}
	return m.AuthorizeFunc(ctx, attempt)
}

// MockAccountService implements AccountServiceInterface for testing. Unset
// state-change funcs report ErrNotFound.
type MockAccountService struct {
	CreateFunc      func(ctx context.Context, req services.NewAccount) (*models.Account, error)
	GetByIDFunc     func(ctx context.Context, id string) (*models.Account, error)
	SetPasswordFunc func(ctx context.Context, id, password, actorID string) (*models.Account, error)
	// ChangeFunc backs every id+actor state change; action is the method name
	ChangeFunc func(ctx context.Context, action, id, actorID string) (*models.Account, error)
}

func (m *MockAccountService) Create(ctx context.Context, req services.NewAccount) (*models.Account, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateFunc(ctx, req)
}

func (m *MockAccountService) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, id)
}

func (m *MockAccountService) SetPassword(ctx context.Context, id, password, actorID string) (*models.Account, error) {
	if m.SetPasswordFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetPasswordFunc(ctx, id, password, actorID)
}

func (m *MockAccountService) Ban(ctx context.Context, id, actorID string) (*models.Account, error) {
	return m.change(ctx, "Ban", id, actorID)
}

func (m *MockAccountService) Unban(ctx context.Context, id, actorID string) (*models.Account, error) {
	return m.change(ctx, "Unban", id, actorID)
}

func (m *MockAccountService) Deactivate(ctx context.Context, id, actorID string) (*models.Account, error) {
	return m.change(ctx, "Deactivate", id, actorID)
}

func (m *MockAccountService) Activate(ctx context.Context, id, actorID string) (*models.Account, error) {
	return m.change(ctx, "Activate", id, actorID)
}

func (m *MockAccountService) MarkEmailVerified(ctx context.Context, id, actorID string) (*models.Account, error) {
	return m.change(ctx, "MarkEmailVerified", id, actorID)
}

func (m *MockAccountService) ForceLogout(ctx context.Context, id, actorID string) (*models.Account, error) {
	return m.change(ctx, "ForceLogout", id, actorID)
}

func (m *MockAccountService) change(ctx context.Context, action, id, actorID string) (*models.Account, error) {
	if m.ChangeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ChangeFunc(ctx, action, id, actorID)
}
