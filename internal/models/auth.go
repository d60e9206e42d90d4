package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload handed to the session layer after a successful login.
// SessionVersion is captured at issuance; the token is stale once the account's
// current version differs.
type SessionClaims struct {
	UserID         string   `json:"user_id"`
	Email          string   `json:"email"`
	Roles          []string `json:"roles"`
	DisplayName    string   `json:"display_name,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	Preference     string   `json:"preference,omitempty"`
	SessionVersion int64    `json:"sv"`
	jwt.RegisteredClaims
}

// HasRole reports whether the role snapshot in the token contains role
func (c *SessionClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
