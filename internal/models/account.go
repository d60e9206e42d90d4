package models

import (
	"time"
)

// Role names carried in the account's role set and in issued sessions
const (
	RoleCustomer   = "customer"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Eligibility predicates, reported in server-side logs when an account cannot authenticate
const (
	IneligibleNotFound        = "not_found"
	IneligibleBanned          = "banned"
	IneligibleNoPassword      = "no_password"
	IneligibleEmailUnverified = "email_unverified"
	IneligibleInactive        = "inactive"
)

// Account is the persistent user record owned by the account store
type Account struct {
	ID             string
	Email          string
	PasswordHash   string // empty when no password has been set (social-only accounts)
	DisplayName    string
	Gender         string
	Preference     string
	Roles          []string
	IsBanned       bool
	IsActive       bool
	EmailVerified  bool
	SessionVersion int64 // bumped to invalidate every previously issued session
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Eligibility reports whether the account may authenticate with a password.
// All predicates must hold; the first failing one is returned as the reason.
func (a *Account) Eligibility() (bool, string) {
	switch {
	case a == nil:
		return false, IneligibleNotFound
	case a.IsBanned:
		return false, IneligibleBanned
	case a.PasswordHash == "":
		return false, IneligibleNoPassword
	case !a.EmailVerified:
		return false, IneligibleEmailUnverified
	case !a.IsActive:
		return false, IneligibleInactive
	}
	return true, ""
}

// IsEligible is shorthand for the boolean part of Eligibility
func (a *Account) IsEligible() bool {
	ok, _ := a.Eligibility()
	return ok
}

// HasRole reports whether the account currently holds role
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
