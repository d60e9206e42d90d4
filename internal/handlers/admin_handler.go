package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AccountServiceInterface defines the account management contract used by admins
type AccountServiceInterface interface {
	Create(ctx context.Context, req services.NewAccount) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Ban(ctx context.Context, id, actorID string) (*models.Account, error)
	Unban(ctx context.Context, id, actorID string) (*models.Account, error)
	Deactivate(ctx context.Context, id, actorID string) (*models.Account, error)
	Activate(ctx context.Context, id, actorID string) (*models.Account, error)
	MarkEmailVerified(ctx context.Context, id, actorID string) (*models.Account, error)
	SetPassword(ctx context.Context, id, password, actorID string) (*models.Account, error)
	ForceLogout(ctx context.Context, id, actorID string) (*models.Account, error)
}

// AdminHandler handles account administration requests
type AdminHandler struct {
	service AccountServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AccountServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// CreateAccountRequest represents the request body for creating an account
type CreateAccountRequest struct {
	Email         string   `json:"email" validate:"required,email,max=254"`
	Password      string   `json:"password" validate:"omitempty,max=72"`
	DisplayName   string   `json:"display_name" validate:"max=100"`
	Gender        string   `json:"gender" validate:"max=32"`
	Preference    string   `json:"preference" validate:"max=32"`
	Roles         []string `json:"roles" validate:"omitempty,dive,oneof=customer instructor admin"`
	EmailVerified bool     `json:"email_verified"`
}

// SetPasswordRequest represents the request body for replacing a password
type SetPasswordRequest struct {
	Password string `json:"password" validate:"required,max=72"`
}

// AccountResponse is the admin view of an account. The password hash never leaves the service.
type AccountResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name,omitempty"`
	Roles          []string   `json:"roles"`
	IsBanned       bool       `json:"is_banned"`
	IsActive       bool       `json:"is_active"`
	EmailVerified  bool       `json:"email_verified"`
	HasPassword    bool       `json:"has_password"`
	SessionVersion int64      `json:"session_version"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:             a.ID,
		Email:          a.Email,
		DisplayName:    a.DisplayName,
		Roles:          a.Roles,
		IsBanned:       a.IsBanned,
		IsActive:       a.IsActive,
		EmailVerified:  a.EmailVerified,
		HasPassword:    a.PasswordHash != "",
		SessionVersion: a.SessionVersion,
		LastLoginAt:    a.LastLoginAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// CreateAccount handles POST /admin/accounts
func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Create(r.Context(), services.NewAccount{
		Email:         req.Email,
		Password:      req.Password,
		DisplayName:   req.DisplayName,
		Gender:        req.Gender,
		Preference:    req.Preference,
		Roles:         req.Roles,
		EmailVerified: req.EmailVerified,
	})
	if err != nil {
		writeAccountError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// GetAccount handles GET /admin/accounts/{id}
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// Ban handles POST /admin/accounts/{id}/ban
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.service.Ban)
}

// Unban handles POST /admin/accounts/{id}/unban
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.service.Unban)
}

// Deactivate handles POST /admin/accounts/{id}/deactivate
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.service.Deactivate)
}

// Activate handles POST /admin/accounts/{id}/activate
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.service.Activate)
}

// VerifyEmail handles POST /admin/accounts/{id}/verify-email
func (h *AdminHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.service.MarkEmailVerified)
}

// ForceLogout handles POST /admin/accounts/{id}/force-logout
func (h *AdminHandler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.service.ForceLogout)
}

// SetPassword handles PUT /admin/accounts/{id}/password
func (h *AdminHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req SetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.SetPassword(r.Context(), id, req.Password, actorID(r))
	if err != nil {
		writeAccountError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AdminHandler) change(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, actorID string) (*models.Account, error)) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	account, err := op(r.Context(), id, actorID(r))
	if err != nil {
		writeAccountError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid account ID")
		return "", false
	}
	return id, true
}

func actorID(r *http.Request) string {
	if claims := auth.GetSessionFromContext(r); claims != nil {
		return claims.UserID
	}
	return ""
}

func writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Account already exists")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid account data")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
