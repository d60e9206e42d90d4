package services

import (
	"strings"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/go-playground/validator/v10"
)

const (
	maxEmailBytes    = 254
	maxPasswordBytes = 1024
)

// CredentialValidator performs the structural checks on a login attempt. It has
// no side effects and runs before any backend is touched.
type CredentialValidator struct {
	validate *validator.Validate
}

// NewCredentialValidator creates a new CredentialValidator
func NewCredentialValidator() *CredentialValidator {
	return &CredentialValidator{validate: validator.New()}
}

// ValidateAttempt reports whether attempt is well formed
func (v *CredentialValidator) ValidateAttempt(attempt models.LoginAttempt) bool {
	return v.Check(attempt) == ""
}

// Check returns the rejection reason, or "" when the attempt is well formed
func (v *CredentialValidator) Check(attempt models.LoginAttempt) string {
	if strings.TrimSpace(attempt.Website) != "" {
		return models.ReasonHoneypot
	}

	// validator counts runes for max; the limits here are in bytes
	if len(attempt.Email) > maxEmailBytes || len(attempt.Password) > maxPasswordBytes {
		return models.ReasonInvalidInput
	}

	if err := v.validate.Struct(attempt); err != nil {
		return models.ReasonInvalidInput
	}

	return ""
}

// NormalizeEmail trims surrounding whitespace and lowercases the address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
