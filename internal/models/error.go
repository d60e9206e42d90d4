package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrAuthenticationFailed is the single signal returned by the login pipeline.
	// Callers never learn which check rejected the attempt.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Session errors
	ErrSessionInvalid = errors.New("session token is invalid")
	ErrSessionStale   = errors.New("session version no longer matches account")

	// Account state errors (server-side only)
	ErrAccountBanned   = errors.New("account is banned")
	ErrAccountInactive = errors.New("account is inactive")

	// ErrBackendUnavailable marks failures of the account store, cache or rate limit store
	ErrBackendUnavailable = errors.New("backend unavailable")
)
