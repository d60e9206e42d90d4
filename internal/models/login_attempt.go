package models

// LoginAttempt is a single password-login submission. It lives only for the
// duration of the request; the password is never logged or persisted.
type LoginAttempt struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=1024"`
	Website  string // honeypot, hidden from humans

	// Request metadata for the audit log
	IPAddress string
	UserAgent string
}

// Failure reasons recorded in logs, audit events and metrics
const (
	ReasonInvalidInput       = "invalid_input"
	ReasonHoneypot           = "honeypot"
	ReasonRateLimited        = "rate_limited"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTimeout            = "timeout"
	ReasonCanceled           = "canceled" // client went away mid-attempt
	ReasonBackendPrefix      = "backend:"
	ReasonIneligiblePrefix   = "ineligible:"
)
