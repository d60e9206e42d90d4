package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/internal/services"
	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
)

// maxLoginBodyBytes bounds the login body; the field limits are far smaller
const maxLoginBodyBytes = 8 << 10

// AuthServiceInterface defines the interface for the login pipeline
type AuthServiceInterface interface {
	Authorize(ctx context.Context, attempt models.LoginAttempt) (*services.LoginResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// LoginRequest represents the request body for login. Website is a honeypot
// field that the login form hides from humans.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Website  string `json:"website"`
}

// SessionResponse describes the session behind the presented token
type SessionResponse struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Roles          []string  `json:"roles"`
	DisplayName    string    `json:"display_name,omitempty"`
	Gender         string    `json:"gender,omitempty"`
	Preference     string    `json:"preference,omitempty"`
	SessionVersion int64     `json:"session_version"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Login handles password login
// @Summary Password login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Same answer as any other rejection; a body the pipeline cannot read is just a bad credential
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	result, err := h.service.Authorize(r.Context(), models.LoginAttempt{
		Email:     req.Email,
		Password:  req.Password,
		Website:   req.Website,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	})
	if err != nil {
		if !errors.Is(err, models.ErrAuthenticationFailed) {
			h.logger.Error("unexpected login error", slog.Any("error", err))
		}
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Session returns the session of the bearer token. Roles come from the current
// account record rather than the snapshot in the token.
// @Summary Current session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	account := auth.GetAccountFromContext(r)
	if claims == nil || account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	resp := SessionResponse{
		UserID:         account.ID,
		Email:          account.Email,
		Roles:          account.Roles,
		DisplayName:    account.DisplayName,
		Gender:         account.Gender,
		Preference:     account.Preference,
		SessionVersion: claims.SessionVersion,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
